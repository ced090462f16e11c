package signals

// Built-in vocabularies. Rule packs may replace any of them.
var (
	CriticalTerms = NewLexicon("critical",
		"urgent", "emergency", "asap",
		"lawyer", "attorney", "lawsuit", "sue", "legal action", "court",
		"fraud", "fraudulent", "scam",
		"unauthorized charge", "unauthorized charges", "unauthorised charge",
		"chargeback", "stolen card", "identity theft", "did not authorize",
	)

	LegalTerms = NewLexicon("legal",
		"lawyer", "attorney", "lawsuit", "sue", "legal action", "legal",
		"court", "better business bureau", "bbb", "consumer protection",
	)

	RefundTerms = NewLexicon("refund",
		"refund", "money back", "reimburse", "reimbursement", "return my money",
		"cancel my order", "chargeback",
	)

	AngerTerms = NewLexicon("anger",
		"angry", "furious", "outraged", "ridiculous", "unacceptable", "terrible",
		"worst", "horrible", "awful", "disgusted", "disgusting", "pathetic",
		"useless", "incompetent", "scam", "hate", "fed up", "sick of",
		"never again", "waste of money",
	)

	DefectTerms = NewLexicon("defect",
		"broken", "defective", "damaged", "faulty", "cracked", "malfunction",
		"malfunctioning", "not working", "stopped working", "doesnt work", "wont turn on",
	)

	LowPriorityTerms = NewLexicon("low_priority",
		"just wondering", "quick question", "no rush", "when you get a chance",
		"feedback", "suggestion", "thank you", "thanks", "newsletter", "unsubscribe",
	)
)

// IssueCategories maps a category name to the lexicon that detects it.
// Order is stable so results are deterministic.
var IssueCategories = []*Lexicon{
	NewLexicon("shipping", "shipping", "delivery", "delivered", "tracking", "package", "shipment", "late"),
	NewLexicon("billing", "charge", "charged", "billing", "invoice", "payment", "overcharged", "double charged"),
	NewLexicon("product", "broken", "damaged", "defective", "wrong item", "wrong size", "missing item", "quality"),
	NewLexicon("account", "password", "login", "log in", "account", "locked out"),
	NewLexicon("returns", "return", "exchange", "refund"),
}

// Categories returns the names of issue categories mentioned in s.
func Categories(s string) []string {
	toks := Tokens(s)
	var out []string
	for _, l := range IssueCategories {
		if l.Any(toks) {
			out = append(out, l.Name)
		}
	}
	return out
}
