package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fabfab/stakeholder-rag/profile"
)

func TestExtractMetadata(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		docType profile.DocType
		want    map[string]any
	}{
		{
			name:    "failed transaction",
			text:    "Trans ID: 9F8E7D6C5B, payment failed",
			docType: profile.DocUPITransaction,
			want:    map[string]any{"transaction_id": "9F8E7D6C5B", "status": "failed"},
		},
		{
			name:    "api response",
			text:    "POST /v1/collect status code: 503 latency 450ms",
			docType: profile.DocBankAPIResponse,
			want:    map[string]any{"status_code": "503", "response_time": "450"},
		},
		{
			name:    "non-compliant report",
			text:    "High risk merchant flagged, non-compliant with KYC rules",
			docType: profile.DocComplianceReport,
			want:    map[string]any{"risk_level": "high", "compliance_status": "non-compliant"},
		},
		{
			name:    "compliant report",
			text:    "All checks compliant, low risk",
			docType: profile.DocComplianceReport,
			want:    map[string]any{"risk_level": "low", "compliance_status": "compliant"},
		},
		{
			name:    "sla met",
			text:    "Uptime: 99.7% and the SLA was met",
			docType: profile.DocPartnershipSLA,
			want:    map[string]any{"uptime": 99.7, "sla_status": "met"},
		},
		{
			name:    "sla breached",
			text:    "uptime 97.5%, penalty due to breach",
			docType: profile.DocPartnershipSLA,
			want:    map[string]any{"uptime": 97.5, "sla_status": "breached"},
		},
		{
			name:    "nothing found",
			text:    "no useful fields",
			docType: profile.DocBankAPIResponse,
			want:    map[string]any{},
		},
		{
			name:    "unknown type",
			text:    "TXN: ABC12345678 success",
			docType: "settlement_file",
			want:    map[string]any{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractMetadata(tc.text, tc.docType))
		})
	}
}
