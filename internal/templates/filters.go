package templates

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flosch/pongo2/v6"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

// baseURL backs the abs_url filter. pongo2 filters are process-global, so
// the site URL is configured once per build rather than per registry.
var baseURL atomic.Value // string

var registerFiltersOnce sync.Once

// RegisterFilters installs the built-in filter set into the render engine
// and records the site URL used by abs_url. Safe to call repeatedly.
func RegisterFilters(siteURL string) {
	baseURL.Store(strings.TrimRight(siteURL, "/"))
	registerFiltersOnce.Do(installFilters)
}

func installFilters() {
	install := func(name string, fn pongo2.FilterFunction) {
		// A few names shadow engine builtins (date, wordcount); those are
		// replaced so template authors get consistent behavior.
		if pongo2.FilterExists(name) {
			_ = pongo2.ReplaceFilter(name, fn)
			return
		}
		_ = pongo2.RegisterFilter(name, fn)
	}

	install("date", filterDate)
	install("iso", filterISO)
	install("slugify", filterSlugify)
	install("truncate", filterTruncate)
	install("wordcount", filterWordcount)
	install("reading_time", filterReadingTime)
	install("reading_time_label", filterReadingTimeLabel)
	install("tag_url", filterTagURL)
	install("category_url", filterCategoryURL)
	install("json", filterJSON)
	install("active_class", filterActiveClass)
	install("md5", filterMD5)
	install("abs_url", filterAbsURL)
}

// parseDatetime tries the timestamp formats that appear in page contexts.
func parseDatetime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func datetimeOf(in *pongo2.Value) (time.Time, bool) {
	if t, ok := in.Interface().(time.Time); ok {
		return t, true
	}
	return parseDatetime(in.String())
}

func filterDate(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	t, ok := datetimeOf(in)
	if !ok {
		return nil, &pongo2.Error{Sender: "filter:date", OrigError: fmt.Errorf("cannot parse date %q", in.String())}
	}
	layout := "January 2, 2006"
	if !param.IsNil() && param.String() != "" {
		layout = param.String()
	}
	return pongo2.AsValue(t.Format(layout)), nil
}

func filterISO(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	t, ok := datetimeOf(in)
	if !ok {
		return nil, &pongo2.Error{Sender: "filter:iso", OrigError: fmt.Errorf("cannot parse date %q", in.String())}
	}
	return pongo2.AsValue(t.Format(time.RFC3339)), nil
}

func filterSlugify(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(content.Slugify(in.String())), nil
}

func filterTruncate(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	length := 160
	if !param.IsNil() && param.Integer() > 0 {
		length = param.Integer()
	}
	runes := []rune(in.String())
	if len(runes) <= length {
		return pongo2.AsValue(in.String()), nil
	}
	return pongo2.AsValue(string(runes[:length]) + "…"), nil
}

func filterWordcount(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(content.CountWords(in.String())), nil
}

func filterReadingTime(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(content.ReadingTime(in.Integer())), nil
}

func filterReadingTimeLabel(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	minutes := in.Integer()
	switch {
	case minutes < 1:
		return pongo2.AsValue("less than a minute read"), nil
	case minutes == 1:
		return pongo2.AsValue("about 1 minute read"), nil
	default:
		return pongo2.AsValue(fmt.Sprintf("about %d minutes read", minutes)), nil
	}
}

func filterTagURL(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue("/tags/" + content.Slugify(in.String()) + "/"), nil
}

func filterCategoryURL(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue("/categories/" + content.Slugify(in.String()) + "/"), nil
}

func filterJSON(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	data, err := json.Marshal(in.Interface())
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:json", OrigError: err}
	}
	return pongo2.AsSafeValue(string(data)), nil
}

func filterActiveClass(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.IsTrue() {
		return pongo2.AsValue("active"), nil
	}
	return pongo2.AsValue(""), nil
}

func filterMD5(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	sum := md5.Sum([]byte(in.String()))
	return pongo2.AsValue(hex.EncodeToString(sum[:])), nil
}

func filterAbsURL(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	base, _ := baseURL.Load().(string)
	return pongo2.AsValue(base + "/" + strings.TrimLeft(in.String(), "/")), nil
}
