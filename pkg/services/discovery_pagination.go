package services

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

var (
	nextURLKeys     = []string{"next_page_url", "next_url", "nextPageUrl", "nextUrl", "next_page", "nextPage", "next"}
	currentPageKeys = []string{"current_page", "currentPage", "page"}
	totalPageKeys   = []string{"total_pages", "totalPages", "last_page", "lastPage", "pages"}
	hasNextKeys     = []string{"has_next_page", "hasNextPage", "has_more", "hasMore", "next_page_exists", "has_next"}

	// paginationContainers are envelope keys that commonly hold paging metadata.
	paginationContainers = []string{"links", "_links", "meta", "pagination", "paging"}
)

// paginationScopes returns the root object followed by any paging containers.
func paginationScopes(doc any) []map[string]any {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	scopes := []map[string]any{root}
	for _, key := range paginationContainers {
		if nested, ok := root[key].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}
	return scopes
}

// detectPagination checks, in priority order, a next-URL link, numeric
// current/total pages, and a has-next flag.
func detectPagination(doc any, currentURL, pageParam string) models.PaginationInfo {
	if next, key := findNextURL(doc, currentURL); next != "" {
		return models.PaginationInfo{Type: models.PaginationNextURL, SourceKey: key, NextURL: next}
	}

	for _, scope := range paginationScopes(doc) {
		current, curKey, okCur := firstInt(scope, currentPageKeys)
		total, _, okTotal := firstInt(scope, totalPageKeys)
		if okCur && okTotal {
			return models.PaginationInfo{
				Type:        models.PaginationPageNumber,
				SourceKey:   curKey,
				PageParam:   pageParam,
				CurrentPage: current,
				TotalPages:  total,
			}
		}
	}

	if hasNext, key, ok := findHasNext(doc); ok {
		current := 1
		for _, scope := range paginationScopes(doc) {
			if c, _, ok := firstInt(scope, currentPageKeys); ok {
				current = c
				break
			}
		}
		return models.PaginationInfo{
			Type:        models.PaginationHasNext,
			SourceKey:   key,
			PageParam:   pageParam,
			CurrentPage: current,
			HasNext:     hasNext,
		}
	}

	return models.PaginationInfo{Type: models.PaginationNone}
}

// findNextURL returns the resolved next-page URL and the key it came from.
// Values that are not URLs (numbers, booleans, plain words) are ignored.
func findNextURL(doc any, currentURL string) (string, string) {
	for _, scope := range paginationScopes(doc) {
		for _, key := range nextURLKeys {
			value, ok := scope[key]
			if !ok {
				continue
			}
			// HAL style: {"next": {"href": "..."}}
			if obj, isObj := value.(map[string]any); isObj {
				value = obj["href"]
			}
			s, isString := value.(string)
			if !isString {
				continue
			}
			if resolved := resolveLink(currentURL, s); resolved != "" {
				return resolved, key
			}
		}
	}
	return "", ""
}

// resolveLink turns an absolute http(s) URL, or a "/path" or "?query"
// reference, into an absolute URL. Anything else resolves to "".
func resolveLink(baseURL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		if (ref.Scheme == "http" || ref.Scheme == "https") && ref.Host != "" {
			return ref.String()
		}
		return ""
	}
	if !strings.HasPrefix(link, "/") && !strings.HasPrefix(link, "?") {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func findHasNext(doc any) (bool, string, bool) {
	for _, scope := range paginationScopes(doc) {
		for _, key := range hasNextKeys {
			if b, ok := scope[key].(bool); ok {
				return b, key, true
			}
		}
	}
	return false, "", false
}

func firstInt(scope map[string]any, keys []string) (int, string, bool) {
	for _, key := range keys {
		if n, ok := jsonutil.Int(scope[key]); ok {
			return n, key, true
		}
	}
	return 0, "", false
}

// withQueryParam returns rawURL with key set to value.
func withQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func withPage(rawURL, param string, page int) (string, error) {
	return withQueryParam(rawURL, param, strconv.Itoa(page))
}
