package fixtures

import (
	"fmt"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

const (
	TestUserID  int64 = 1
	TestAdminID int64 = 99
	TestQuizID        = "quiz-e2e"
)

// Leads returns n quiz answers with Brazilian phones and distinct emails,
// keyed the way the quiz builder names its fields.
func Leads(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"nome":     fmt.Sprintf("Lead %d", i+1),
			"telefone": fmt.Sprintf("(11) 98888-10%02d", i+1),
			"email":    fmt.Sprintf("lead%d@example.com", i+1),
		}
	}
	return out
}

// LeadsWithoutContact are answers the extractor cannot reach.
func LeadsWithoutContact() []map[string]any {
	return []map[string]any{
		{"nome": "Sem contato"},
		{"nome": "Telefone ruim", "telefone": "123"},
	}
}

func SMSCampaignRequest() model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		Name:    "Recuperação de leads",
		QuizID:  TestQuizID,
		Message: "Oi {{nome}}, seu resultado está pronto!",
	}
}

func EmailCampaignRequest() model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		Name:    "Resultado por email",
		QuizID:  TestQuizID,
		Subject: "Olá {{nome}}",
		Content: "<p>Oi {{nome}}, veja seu resultado.</p>",
	}
}

func WhatsAppCampaignRequest() model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		Name:     "Follow-up WhatsApp",
		QuizID:   TestQuizID,
		Messages: []string{"Oi {{nome}}!", "Olá {{nome}}, tudo bem?"},
	}
}
