package authgate

import (
	"bytes"
	"html/template"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/i18n"
)

var defaultHTML = template.Must(template.New("auth_code").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
  .content { background: #f8f9fa; padding: 30px; border-radius: 0 0 10px 10px; }
  .code-box { background: white; border: 2px solid #667eea; border-radius: 8px; padding: 20px; margin: 20px 0; text-align: center; }
  .code { font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #667eea; font-family: 'Courier New', monospace; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h1>{{.BotName}}</h1></div>
  <div class="content">
    <p>{{.Intro}}</p>
    <div class="code-box"><div class="code">{{.Code}}</div></div>
  </div>
</div>
</body>
</html>
`))

// ComposeEmail builds the subject, plain body and HTML body of a code email.
// Custom templates on the bot override the localized defaults. The built-in
// HTML layout is used only when the bot has no custom template at all.
func ComposeEmail(catalog *i18n.Catalog, bot bots.Bot, lang, code string) (subject, body, html string) {
	vars := map[string]string{"bot_name": bot.Name, "code": code}
	subject = catalog.T(lang, "auth.email_subject", vars)
	body = catalog.T(lang, "auth.email_body", vars)

	custom := bot.AuthEmailSubjectTemplate != "" || bot.AuthEmailBodyTemplate != "" || bot.AuthEmailHTMLTemplate != ""
	if custom {
		if bot.AuthEmailSubjectTemplate != "" {
			subject = i18n.Format(bot.AuthEmailSubjectTemplate, vars)
		}
		if bot.AuthEmailBodyTemplate != "" {
			body = i18n.Format(bot.AuthEmailBodyTemplate, vars)
		}
		if bot.AuthEmailHTMLTemplate != "" {
			html = i18n.Format(bot.AuthEmailHTMLTemplate, vars)
		}
		return subject, body, html
	}

	var buf bytes.Buffer
	err := defaultHTML.Execute(&buf, struct {
		BotName string
		Intro   string
		Code    string
	}{BotName: bot.Name, Intro: catalog.T(lang, "auth.email_subject", vars), Code: code})
	if err == nil {
		html = buf.String()
	}
	return subject, body, html
}
