package notifications

import (
	"fmt"
	"strings"
	"time"
)

const (
	themePrimary = "#1D4ED8"
	themeText    = "#1F2937"
	themeMuted   = "#6B7280"
	themeBg      = "#F3F4F6"
)

// EmailLayout wraps content in the shared HTML frame.
func EmailLayout(contentHTML string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Unit Fund</title>
  <style>
    body { margin: 0; padding: 0; background-color: %s; font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; color: %s; }
    .content-body p { margin: 0 0 20px 0; font-size: 16px; line-height: 1.6; }
    .content-body h1 { font-size: 22px; margin: 0 0 20px 0; }
    .figures td { padding: 6px 12px; border-bottom: 1px solid #E5E7EB; }
    .footer-text { color: %s; font-size: 13px; }
    a { color: %s; }
  </style>
</head>
<body>
  <table role="presentation" width="100%%" cellspacing="0" cellpadding="0">
    <tr>
      <td align="center" style="padding: 40px 0;">
        <table role="presentation" width="600" cellspacing="0" cellpadding="0" style="background: #FFFFFF; border-radius: 8px;">
          <tr><td class="content-body" style="padding: 40px 48px 24px 48px;">%s</td></tr>
          <tr><td align="center" style="padding: 0 48px 32px 48px;"><p class="footer-text">© %d Unit Fund. Figures are indicative until the next valuation.</p></td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, themeBg, themeText, themeMuted, themePrimary, contentHTML, time.Now().Year())
}

// EscapeHTML escapes HTML specials for safe interpolation.
func EscapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;").Replace(s)
}
