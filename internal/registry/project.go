package registry

import (
	"strconv"
	"strings"
	"time"

	"github.com/datacite/registry-search/internal/search"
)

// ProjectDocument builds the index-resident projection of an entity. The
// projection is a pure function of the entity: parent names are already
// denormalized onto the attributes, so no lookups happen here.
func ProjectDocument(e *Entity) search.Document {
	fields := fieldSet{}
	var text []string

	switch e.Type {
	case search.TypeWorks:
		fields.set("doi", e.UID)
		fields.set("prefix", doiPrefix(e.UID))
		fields.set("state", e.Attr("state"))
		fields.set("provider_id", e.Attr("provider_id"))
		fields.set("client_id", e.Attr("client_id"))
		fields.set("resource_type", e.Attr("resource_type"))
		fields.set("schema_version", e.Attr("schema_version"))
		fields.setInt("publication_year", e.AttrInt("publication_year"))
		fields.set("registered", e.Attr("registered"))
		fields.set("provider_id_and_name", composite(e.Attr("provider_id"), e.Attr("provider_name")))
		fields.set("client_id_and_name", composite(e.Attr("client_id"), e.Attr("client_name")))
		text = append(text, e.Attr("title"), e.Attr("publisher"))
		text = append(text, e.AttrList("creators")...)

	case search.TypeClients:
		fields.set("name", e.Attr("name"))
		fields.set("symbol", e.UID)
		fields.set("provider_id", e.Attr("provider_id"))
		fields.set("client_type", e.Attr("client_type"))
		fields.set("software", e.AttrList("software")...)
		fields.set("certificate", e.AttrList("certificate")...)
		fields.set("repository_type", e.AttrList("repository_type")...)
		fields.set("year", yearOf(e.Created))
		fields.set("provider_id_and_name", composite(e.Attr("provider_id"), e.Attr("provider_name")))
		text = append(text, e.Attr("name"), e.Attr("alternate_name"), e.Attr("description"), e.UID)

	case search.TypeProviders:
		fields.set("name", e.Attr("name"))
		fields.set("symbol", e.UID)
		fields.set("region", e.Attr("region"))
		fields.set("member_type", e.Attr("member_type"))
		fields.set("country_code", e.Attr("country_code"))
		fields.set("year", yearOf(e.Created))
		text = append(text, e.Attr("name"), e.Attr("display_name"), e.Attr("description"), e.UID)

	case search.TypePrefixes:
		fields.set("prefix", e.UID)
		fields.set("state", e.Attr("state"))
		fields.set("year", yearOf(e.Created))
		fields.set("provider_id", e.AttrList("provider_ids")...)
		fields.set("client_id", e.AttrList("client_ids")...)
		fields.set("provider_id_and_name", e.AttrList("provider_ids_and_names")...)
		text = append(text, e.UID)

	case search.TypeClientPrefixes:
		fields.set("prefix", e.Attr("prefix_id"))
		fields.set("client_id", e.Attr("client_id"))
		fields.set("year", yearOf(e.Created))
		fields.set("client_id_and_name", composite(e.Attr("client_id"), e.Attr("client_name")))
		text = append(text, e.Attr("prefix_id"), e.Attr("client_id"))

	case search.TypeProviderPrefixes:
		fields.set("prefix", e.Attr("prefix_id"))
		fields.set("provider_id", e.Attr("provider_id"))
		fields.set("year", yearOf(e.Created))
		fields.set("provider_id_and_name", composite(e.Attr("provider_id"), e.Attr("provider_name")))
		text = append(text, e.Attr("prefix_id"), e.Attr("provider_id"))

	case search.TypeEvents:
		fields.set("subj_id", e.Attr("subj_id"))
		fields.set("obj_id", e.Attr("obj_id"))
		fields.set("source_id", e.Attr("source_id"))
		fields.set("citation_type", e.Attr("citation_type"))
		fields.set("relation_type_id", e.Attr("relation_type_id"))
		fields.set("registrant_id", e.AttrList("registrant_ids")...)
		fields.set("doi", e.AttrList("dois")...)
		fields.set("prefix", e.AttrList("prefixes")...)
		fields.setInt("publication_year", e.AttrInt("publication_year"))
		fields.set("occurred", e.Attr("occurred_at"))
		fields.set("year_month", yearMonthOf(e.Attr("occurred_at")))
		text = append(text, e.Attr("subj_id"), e.Attr("obj_id"))
	}

	return search.Document{
		Type:    e.Type,
		UID:     e.UID,
		Fields:  fields,
		Text:    joinText(text),
		Created: e.Created,
		Updated: e.Updated,
		Version: e.Version,
	}
}

type fieldSet map[string][]string

func (f fieldSet) set(name string, values ...string) {
	for _, v := range values {
		if v != "" {
			f[name] = append(f[name], v)
		}
	}
}

func (f fieldSet) setInt(name string, v int) {
	if v != 0 {
		f[name] = append(f[name], strconv.Itoa(v))
	}
}

func composite(id, name string) string {
	if id == "" {
		return ""
	}
	if name == "" {
		return id
	}
	return id + ":" + name
}

func doiPrefix(doi string) string {
	if prefix, _, ok := strings.Cut(doi, "/"); ok {
		return prefix
	}
	return ""
}

func yearOf(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.Itoa(t.Year())
}

// yearMonthOf truncates an occurred-at timestamp to "YYYY-MM".
func yearMonthOf(v string) string {
	if len(v) >= 7 {
		return v[:7]
	}
	return ""
}

func joinText(parts []string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
