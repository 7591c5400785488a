package warmup

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Diagnostic summarizes the page a failed warm-up got stuck on.
type Diagnostic struct {
	Title     string `json:"title,omitempty"`
	Challenge string `json:"challenge,omitempty"` // detected anti-bot vendor, if any
	Excerpt   string `json:"excerpt,omitempty"`
}

const excerptLimit = 300

// Diagnose inspects page HTML. It never fails; unparsable input yields an
// empty diagnostic.
func Diagnose(html string) Diagnostic {
	if strings.TrimSpace(html) == "" {
		return Diagnostic{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Diagnostic{Challenge: detectChallengePage("", html)}
	}

	d := Diagnostic{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	d.Challenge = detectChallengePage(d.Title, html)

	doc.Find("script, style, noscript, iframe, svg").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if r := []rune(text); len(r) > excerptLimit {
		text = string(r[:excerptLimit]) + "…"
	}
	d.Excerpt = text
	return d
}

// detectChallengePage reports which challenge, if any, the page looks like.
func detectChallengePage(title, html string) string {
	titleLower := strings.ToLower(title)
	htmlLower := strings.ToLower(html)

	switch {
	case strings.Contains(titleLower, "just a moment"),
		strings.Contains(titleLower, "attention required"),
		strings.Contains(htmlLower, "cf-challenge"),
		strings.Contains(htmlLower, "cf_chl_opt"):
		return "cloudflare"
	case strings.Contains(htmlLower, "challenges.cloudflare.com/turnstile"),
		strings.Contains(htmlLower, "cf-turnstile"):
		return "cloudflare-turnstile"
	case strings.Contains(htmlLower, "ddos-guard"):
		return "ddos-guard"
	case strings.Contains(htmlLower, "qrator"):
		return "qrator"
	case strings.Contains(htmlLower, "servicepipe"):
		return "servicepipe"
	case strings.Contains(htmlLower, "smartcaptcha"),
		strings.Contains(htmlLower, "captcha-api.yandex"):
		return "yandex-smartcaptcha"
	case strings.Contains(htmlLower, "hcaptcha.com"),
		strings.Contains(htmlLower, "h-captcha"):
		return "hcaptcha"
	case strings.Contains(htmlLower, "google.com/recaptcha"),
		strings.Contains(htmlLower, "g-recaptcha"):
		return "recaptcha"
	case strings.Contains(titleLower, "access denied"),
		strings.Contains(titleLower, "blocked"),
		strings.Contains(titleLower, "доступ ограничен"),
		strings.Contains(htmlLower, "robot or human"):
		return "anti-bot"
	}
	return ""
}
