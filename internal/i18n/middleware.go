package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the best supported language from the Accept-Language
// header, falling back to lang, and injects its localizer into the request.
func Middleware(lang string) func(http.Handler) http.Handler {
	tags := Languages()
	matcher := language.NewMatcher(tags)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if accept := r.Header.Get("Accept-Language"); accept != "" && len(tags) > 0 {
				if prefs, _, err := language.ParseAcceptLanguage(accept); err == nil && len(prefs) > 0 {
					_, idx, conf := matcher.Match(prefs...)
					if conf != language.No {
						chosen = tags[idx].String()
					}
				}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen, lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
