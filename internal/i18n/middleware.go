package i18n

import (
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language is
// matched from the Accept-Language header against the loaded locales, with
// lang as the fallback.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	matcher := language.NewMatcher(bundle.LanguageTags())
	localizers := make(map[string]*i18n.Localizer)
	for _, tag := range bundle.LanguageTags() {
		localizers[tag.String()] = NewLocalizer(tag.String())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				if tag := Match(matcher, accept); tag != "" {
					if l, ok := localizers[tag]; ok {
						loc = l
					}
				}
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Match returns the loaded locale that best fits an Accept-Language header,
// or "" when nothing matches with at least high confidence.
func Match(matcher language.Matcher, accept string) string {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, index, conf := matcher.Match(tags...)
	if conf < language.High {
		return ""
	}
	return bundle.LanguageTags()[index].String()
}
