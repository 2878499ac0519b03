package search

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	apperrors "github.com/datacite/registry-search/pkg/errors"
)

// PageMode selects exactly one pagination strategy for a request.
type PageMode int

const (
	// PageOffset is number/size paging, valid only inside the engine's
	// result window.
	PageOffset PageMode = iota
	// PageCursor is search-after paging keyed on the last seen sort tuple.
	PageCursor
	// PageScroll is a server-held, TTL-bound continuation context.
	PageScroll
)

// PageSpec is the resolved pagination strategy for one request. Exactly one
// mode is active; the fields of inactive modes are zero.
type PageSpec struct {
	Mode   PageMode
	Number int
	Size   int
	// MaxNumber is the last page addressable inside the result window,
	// offset mode only. Number never exceeds it.
	MaxNumber int
	Cursor    []string
	ScrollID  string
}

// PageParams carries the raw, untrusted pagination parameters of a request.
// Presence flags distinguish "absent" from "present but empty": an empty
// page[cursor] still selects cursor mode (first page).
type PageParams struct {
	Number string
	Size   string

	Cursor        string
	CursorPresent bool

	Scroll        bool
	ScrollID      string
	ScrollPresent bool
}

// PageLimits holds engine ceilings used to clamp offset paging.
type PageLimits struct {
	DefaultSize       int
	ScrollDefaultSize int
	MaxSize           int
	MaxWindow         int
}

// DefaultPageLimits matches the engine defaults: 25 per page, 1000 max,
// 10,000 result window, 1000 per scroll batch.
func DefaultPageLimits() PageLimits {
	return PageLimits{
		DefaultSize:       25,
		ScrollDefaultSize: 1000,
		MaxSize:           1000,
		MaxWindow:         10000,
	}
}

// ParsePage resolves raw pagination parameters into a single strategy.
//
// Malformed numeric values fall back to defaults silently. Combining cursor
// and scroll parameters is a caller error and is rejected; everything else
// is clamped, never refused. Offset numbers beyond the result window are
// truncated to the last valid page.
func ParsePage(params PageParams, limits PageLimits) (PageSpec, error) {
	if params.CursorPresent && params.ScrollPresent {
		return PageSpec{}, apperrors.New(apperrors.ErrInvalidPage, 400,
			"page[cursor] cannot be combined with page[scroll] or scroll-id")
	}

	if params.ScrollPresent {
		size := parseIntOr(params.Size, limits.ScrollDefaultSize)
		size = clamp(size, 0, limits.MaxSize)
		return PageSpec{
			Mode:     PageScroll,
			Size:     size,
			ScrollID: params.ScrollID,
		}, nil
	}

	if params.CursorPresent {
		size := parseIntOr(params.Size, limits.DefaultSize)
		size = clamp(size, 0, limits.MaxSize)
		return PageSpec{
			Mode:   PageCursor,
			Size:   size,
			Cursor: DecodeCursor(params.Cursor),
		}, nil
	}

	size := parseIntOr(params.Size, limits.DefaultSize)
	size = clamp(size, 0, limits.MaxSize)

	// The last page whose window stays under the ceiling. With size 0 only
	// page 1 is addressable (aggregation-only queries).
	maxNumber := 1
	if size > 0 {
		maxNumber = limits.MaxWindow / size
		if maxNumber < 1 {
			maxNumber = 1
		}
	}
	number := parseIntOr(params.Number, 1)
	if number < 1 {
		number = 1
	}
	if number > maxNumber {
		number = maxNumber
	}

	return PageSpec{
		Mode:      PageOffset,
		Number:    number,
		Size:      size,
		MaxNumber: maxNumber,
	}, nil
}

// EncodeCursor packs a sort tuple into an opaque URL-safe token.
func EncodeCursor(sortValues []string) string {
	if len(sortValues) == 0 {
		return ""
	}
	data, err := json.Marshal(sortValues)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor unpacks a cursor token. Undecodable tokens yield an empty
// tuple, which means "first page" — cursor parsing is permissive like the
// numeric parameters.
func DecodeCursor(token string) []string {
	if token == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	return values
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
