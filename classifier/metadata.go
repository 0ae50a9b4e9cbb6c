package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fabfab/stakeholder-rag/profile"
)

var (
	txnIDPattern        = regexp.MustCompile(`(?i)(?:TXN|TRANS|ID)[:\s]+([A-Z0-9]{8,})`)
	txnAmountPattern    = regexp.MustCompile(`(?i)(?:amount|₹|INR|RS)[:\s]*([0-9,]+(?:\.[0-9]{2})?)`)
	statusCodePattern   = regexp.MustCompile(`(?i)(?:status|code)[:\s]*([0-9]{3})`)
	responseTimePattern = regexp.MustCompile(`(?i)(?:response time|latency)[:\s]*([0-9]+)\s*(?:ms|seconds?)`)
	uptimePattern       = regexp.MustCompile(`(?i)uptime[:\s]*([0-9]{2,3}\.[0-9]+)%`)
)

// ExtractMetadata pulls the type-specific fields out of text. Fields that are not found are
// left out of the map.
func ExtractMetadata(text string, docType profile.DocType) map[string]any {
	md := make(map[string]any)
	lower := strings.ToLower(text)

	switch docType {
	case profile.DocUPITransaction:
		if m := txnIDPattern.FindStringSubmatch(text); m != nil {
			md["transaction_id"] = m[1]
		}
		if m := txnAmountPattern.FindStringSubmatch(text); m != nil {
			md["amount"] = m[1]
		}
		switch {
		case strings.Contains(lower, "success"):
			md["status"] = "success"
		case strings.Contains(lower, "fail"), strings.Contains(lower, "error"):
			md["status"] = "failed"
		}

	case profile.DocBankAPIResponse:
		if m := statusCodePattern.FindStringSubmatch(text); m != nil {
			md["status_code"] = m[1]
		}
		if m := responseTimePattern.FindStringSubmatch(text); m != nil {
			md["response_time"] = m[1]
		}

	case profile.DocComplianceReport:
		switch {
		case strings.Contains(lower, "high risk"):
			md["risk_level"] = "high"
		case strings.Contains(lower, "medium risk"):
			md["risk_level"] = "medium"
		case strings.Contains(lower, "low risk"):
			md["risk_level"] = "low"
		}
		switch {
		case strings.Contains(lower, "compliant") && !strings.Contains(lower, "non"):
			md["compliance_status"] = "compliant"
		case strings.Contains(lower, "non-compliant"), strings.Contains(lower, "violation"):
			md["compliance_status"] = "non-compliant"
		}

	case profile.DocPartnershipSLA:
		if m := uptimePattern.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				md["uptime"] = v
			}
		}
		switch {
		case strings.Contains(lower, "met") && strings.Contains(lower, "sla"):
			md["sla_status"] = "met"
		case strings.Contains(lower, "breach"), strings.Contains(lower, "violation"):
			md["sla_status"] = "breached"
		}
	}

	return md
}
