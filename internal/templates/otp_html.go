package templates

import (
	"bytes"
	"html/template"
)

type OtpEmailData struct {
	Code           string
	ExpiresMinutes int
}

const otpHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8"/>
  <title>Élite Zone Admin Verification</title>
  <style>
    body {
      margin: 0;
      padding: 0;
      font-family: Arial, sans-serif;
      background-color: #121222;
      color: #333;
    }
    .email-container {
      width: 100%;
      max-width: 600px;
      margin: 0 auto;
      padding: 20px;
    }
    .header {
      background: linear-gradient(135deg, #C4A052 0%, #E5C06E 100%);
      padding: 30px;
      border-radius: 16px;
      text-align: center;
    }
    .header h1 {
      color: #ffffff;
      margin: 0;
      font-size: 28px;
    }
    .header p {
      color: #ffffff;
      margin: 10px 0 0;
      font-size: 14px;
    }
    .content {
      background: #1a1a2e;
      padding: 40px;
      border-radius: 16px;
      margin-top: 20px;
      text-align: center;
    }
    .content h2 {
      color: #C4A052;
      margin: 0 0 20px;
    }
    .code-box {
      background: #2a2a4e;
      padding: 20px;
      border-radius: 12px;
      display: inline-block;
    }
    .code-box span {
      font-size: 36px;
      font-weight: bold;
      color: #C4A052;
      letter-spacing: 8px;
    }
    .note {
      color: #888;
      margin-top: 30px;
      font-size: 14px;
    }
    .fineprint {
      color: #666;
      font-size: 12px;
      margin-top: 20px;
    }
  </style>
</head>
<body>
  <table class="email-container" role="presentation" border="0" cellpadding="0" cellspacing="0">
    <tr>
      <td>
        <div class="header">
          <h1>&Eacute;LITE ZONE</h1>
          <p>Language Training Center</p>
        </div>
        <div class="content">
          <h2>Your verification code</h2>
          <div class="code-box">
            <span>{{.Code}}</span>
          </div>
          <p class="note">This code is valid for {{.ExpiresMinutes}} minutes only.</p>
          <p class="fineprint">If you did not request this code, please ignore this email.</p>
        </div>
      </td>
    </tr>
  </table>
</body>
</html>
`

func RenderOtpHTML(data OtpEmailData) (string, error) {
	tmpl, err := template.New("otp").Parse(otpHTML)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
