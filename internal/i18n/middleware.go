package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language
// comes from the Accept-Language header and falls back to lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := NewLocalizer(r.Header.Get("Accept-Language"), lang)
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLanguage returns the base language ("en", "ru") of the supported
// locale that best matches the request, or fallback.
func RequestLanguage(r *http.Request, fallback string) string {
	header := r.Header.Get("Accept-Language")
	if header == "" || bundle == nil {
		return fallback
	}
	matcher := language.NewMatcher(bundle.LanguageTags())
	tag, _, conf := matcher.Match(parseAccept(header)...)
	if conf == language.No {
		return fallback
	}
	base, _ := tag.Base()
	return base.String()
}

func parseAccept(header string) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	return tags
}
