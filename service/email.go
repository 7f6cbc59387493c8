package service

import (
	"fmt"

	"biomech/config"
	"biomech/models"

	"gopkg.in/gomail.v2"
)

// EmailService 邮件服务
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// NotifyReviewOutcome 发送审核结果通知，实现 ReviewNotifier
func (s *EmailService) NotifyReviewOutcome(user *models.User, analysis *models.Analysis, decision string) error {
	if !s.cfg.Enabled {
		return nil
	}
	if user.Email == "" {
		return nil
	}

	var subject string
	switch decision {
	case models.DecisionApprove:
		subject = "【动作分析】您的评估报告已发布"
	case models.DecisionReject:
		subject = "【动作分析】您的分析未通过审核"
	case models.DecisionRequestRevision:
		subject = "【动作分析】教练要求补充信息"
	default:
		subject = "【动作分析】审核状态更新"
	}

	body := s.generateReviewEmailBody(user.Username, analysis, decision)
	return s.sendEmail(user.Email, subject, body)
}

// generateReviewEmailBody 生成审核结果邮件内容
func (s *EmailService) generateReviewEmailBody(username string, analysis *models.Analysis, decision string) string {
	var statusText, detail string
	switch decision {
	case models.DecisionApprove:
		statusText = "✅ 审核通过"
		detail = fmt.Sprintf("您提交的动作分析（编号 %d）已由教练审核通过，评分 <strong>%.1f / 10</strong>。登录后即可查看完整评估报告。", analysis.ID, analysis.Score)
	case models.DecisionReject:
		statusText = "❌ 未通过审核"
		detail = fmt.Sprintf("您提交的动作分析（编号 %d）未通过教练审核。原因：%s", analysis.ID, analysis.RejectionReason)
	case models.DecisionRequestRevision:
		statusText = "📝 需要补充"
		detail = fmt.Sprintf("教练查看了您的动作分析（编号 %d），需要您补充信息后重新提交。教练留言：%s", analysis.ID, analysis.ReviewNotes)
	default:
		statusText = "状态更新"
		detail = fmt.Sprintf("您的动作分析（编号 %d）状态已更新为 %s。", analysis.ID, analysis.Status)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Microsoft YaHei', Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 20px rgba(0,0,0,0.1); }
        .header { background: linear-gradient(135deg, #f97316, #ea580c); color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 40px 30px; }
        .content p { color: #333; line-height: 1.8; margin: 0 0 20px; }
        .status { font-size: 20px; font-weight: bold; margin: 20px 0; }
        .footer { background: #f8f9fa; padding: 20px 30px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🏋️ 动作分析</h1>
        </div>
        <div class="content">
            <p>尊敬的 <strong>%s</strong>，您好！</p>
            <p class="status">%s</p>
            <p>%s</p>
        </div>
        <div class="footer">
            <p>此邮件由系统自动发送，请勿回复</p>
            <p>© 动作分析 - 您的训练动作评估助手</p>
        </div>
    </div>
</body>
</html>
`, username, statusText, detail)
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	return nil
}

// SendTestEmail 发送测试邮件
func (s *EmailService) SendTestEmail(toEmail string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用")
	}

	subject := "【动作分析】邮件配置测试"
	body := `
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>✅ 邮件配置成功</h2>
    <p>如果您收到这封邮件，说明邮件服务配置正确。</p>
    <p style="color: #666;">—— 动作分析</p>
</body>
</html>
`
	return s.sendEmail(toEmail, subject, body)
}
