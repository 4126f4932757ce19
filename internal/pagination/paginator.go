// README: Page/per_page query parsing shared by listing endpoints.
package pagination

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

var ErrInvalidParam = errors.New("invalid pagination parameter")

// MaxOffset bounds how deep a listing can be paged.
const MaxOffset = 1_000_000

// Page is a resolved page request.
type Page struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

func (p Page) Limit() int { return p.PerPage }

// Meta describes a returned page.
type Meta struct {
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

func NewMeta(p Page, total int64) Meta {
	last := 1
	if p.PerPage > 0 && total > 0 {
		last = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Meta{Page: p.Page, PerPage: p.PerPage, Total: total, LastPage: last}
}

// Parser holds the defaults applied to missing parameters.
type Parser struct {
	DefaultPerPage int
	MaxPerPage     int
}

func NewParser(defaultPerPage, maxPerPage int) Parser {
	if defaultPerPage <= 0 {
		defaultPerPage = 20
	}
	if maxPerPage < defaultPerPage {
		maxPerPage = defaultPerPage
	}
	return Parser{DefaultPerPage: defaultPerPage, MaxPerPage: maxPerPage}
}

// Parse reads `page` and `per_page`. per_page above the maximum is clamped,
// non-numeric or non-positive values are rejected.
func (p Parser) Parse(c *gin.Context) (Page, error) {
	return p.parse(c.Query("page"), c.Query("per_page"))
}

func (p Parser) parse(pageStr, perPageStr string) (Page, error) {
	out := Page{Page: 1, PerPage: p.DefaultPerPage}
	if pageStr != "" {
		v, err := strconv.Atoi(pageStr)
		if err != nil || v <= 0 {
			return Page{}, ErrInvalidParam
		}
		out.Page = v
	}
	if perPageStr != "" {
		v, err := strconv.Atoi(perPageStr)
		if err != nil || v <= 0 {
			return Page{}, ErrInvalidParam
		}
		out.PerPage = v
	}
	if out.PerPage > p.MaxPerPage {
		out.PerPage = p.MaxPerPage
	}
	if out.Page-1 > MaxOffset/out.PerPage {
		return Page{}, ErrInvalidParam
	}
	return out, nil
}
