package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const defaultPage = 1

// PageLink is one pagination control. URL is nil at the first/last boundary,
// which the client renders as a disabled control with the label preserved.
type PageLink struct {
	URL    *string `json:"url"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
}

type PageMeta struct {
	CurrentPage int  `json:"current_page"`
	From        *int `json:"from"`
	To          *int `json:"to"`
	LastPage    int  `json:"last_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
}

// PageEnvelope is the page object the list pages consume: data rows, the
// link strip, and the meta block.
type PageEnvelope struct {
	Data  any        `json:"data"`
	Links []PageLink `json:"links"`
	Meta  PageMeta   `json:"meta"`
}

func parsePage(rawPage string) int {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < defaultPage {
		return defaultPage
	}
	return page
}

func parsePerPage(rawPerPage string) int {
	perPage, err := strconv.Atoi(strings.TrimSpace(rawPerPage))
	if err != nil || perPage < 1 {
		return defaultPerPage
	}
	if perPage > maxPerPage {
		return maxPerPage
	}
	return perPage
}

// buildPageEnvelope assembles the envelope for one result window. data must
// be a non-nil slice so an empty page serializes as [] rather than null.
// baseURL is the listing path plus any applied filter query; the page param
// is appended per link.
func buildPageEnvelope(data any, totalCount, currentPage, perPage int, baseURL string) PageEnvelope {
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if currentPage < defaultPage {
		currentPage = defaultPage
	}

	lastPage := 1
	if totalCount > 0 {
		lastPage = (totalCount + perPage - 1) / perPage
	}
	if currentPage > lastPage {
		currentPage = lastPage
	}

	var from, to *int
	if totalCount > 0 {
		f := (currentPage-1)*perPage + 1
		t := currentPage * perPage
		if t > totalCount {
			t = totalCount
		}
		from = &f
		to = &t
	}

	links := make([]PageLink, 0, lastPage+2)
	links = append(links, PageLink{
		URL:   pageURLIf(currentPage > 1, baseURL, currentPage-1),
		Label: "&laquo; Previous",
	})
	for page := 1; page <= lastPage; page++ {
		links = append(links, PageLink{
			URL:    pageURL(baseURL, page),
			Label:  strconv.Itoa(page),
			Active: page == currentPage,
		})
	}
	links = append(links, PageLink{
		URL:   pageURLIf(currentPage < lastPage, baseURL, currentPage+1),
		Label: "Next &raquo;",
	})

	return PageEnvelope{
		Data:  data,
		Links: links,
		Meta: PageMeta{
			CurrentPage: currentPage,
			From:        from,
			To:          to,
			LastPage:    lastPage,
			PerPage:     perPage,
			Total:       totalCount,
		},
	}
}

func pageURL(baseURL string, page int) *string {
	separator := "?"
	if strings.Contains(baseURL, "?") {
		separator = "&"
	}
	value := fmt.Sprintf("%s%spage=%d", baseURL, separator, page)
	return &value
}

func pageURLIf(condition bool, baseURL string, page int) *string {
	if !condition {
		return nil
	}
	return pageURL(baseURL, page)
}

// filterQueryValues renders the applied filter set as query params, used to
// build the envelope's base URL so page links keep the filters.
func filterQueryValues(f FilterState) url.Values {
	values := url.Values{}
	if f.Search != "" {
		values.Set("search", f.Search)
	}
	if f.Status != "" {
		values.Set("status", f.Status)
	}
	if f.Tahun != 0 {
		values.Set("tahun", strconv.Itoa(f.Tahun))
	}
	if f.Bulan != 0 {
		values.Set("bulan", strconv.Itoa(f.Bulan))
	}
	if f.Provinsi != "" {
		values.Set("provinsi", f.Provinsi)
	}
	if f.Kota != "" {
		values.Set("kota", f.Kota)
	}
	if f.StatusBantuan != "" {
		values.Set("status_bantuan", f.StatusBantuan)
	}
	return values
}

func listBaseURL(path string, f FilterState) string {
	query := filterQueryValues(f).Encode()
	if query == "" {
		return path
	}
	return path + "?" + query
}
