package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

type LoginApproval struct {
	AppName    string
	UserName   string
	ApproveURL string
	RejectURL  string
	IPAddress  string
	Device     string
	ExpiresIn  time.Duration
}

var loginApprovalTmpl = template.Must(template.New("login_approval").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Confirm your {{.AppName}} sign-in</h2>
  <p>Hello <strong>{{.UserName}}</strong>,</p>
  <p style="color: #666;">We noticed a sign-in from a new device or IP address ({{.IPAddress}}). Please confirm it was you.</p>
  {{if .Device}}<p style="color: #999; font-size: 12px;">Device: {{.Device}}</p>{{end}}
  <div style="background-color: #f0f0f0; padding: 20px; border-radius: 8px; text-align: center;">
    <a href="{{.ApproveURL}}" style="padding: 12px 30px; background-color: #28a745; color: white; text-decoration: none; border-radius: 5px; font-weight: bold;">YES, it was me</a>
    <a href="{{.RejectURL}}" style="padding: 12px 30px; background-color: #dc3545; color: white; text-decoration: none; border-radius: 5px; font-weight: bold;">NO, block it</a>
  </div>
  <p style="color: #999; font-size: 12px; margin-top: 20px;">These links expire in {{.Minutes}} minutes.</p>
</div>`))

// RenderLoginApproval builds the subject and HTML body of the step-up email.
func RenderLoginApproval(data LoginApproval) (string, string, error) {
	minutes := int(data.ExpiresIn.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	err := loginApprovalTmpl.Execute(&buf, struct {
		LoginApproval
		Minutes int
	}{data, minutes})
	if err != nil {
		return "", "", fmt.Errorf("render login approval email: %w", err)
	}

	return fmt.Sprintf("%s - Confirm your sign-in", data.AppName), buf.String(), nil
}
