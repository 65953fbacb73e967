package registry

import "strconv"

// eligiblePrefixes lists the two-digit organisation-number prefix
// families the registry actually carries filings for: aktiebolag (55-56,
// 59), handelsbolag/kommanditbolag (69, 92-93), ekonomiska föreningar
// (71, 76-79), and ideella föreningar/stiftelser (80-89). Enskild firma and other sole
// traders file under a personal identity number and never appear here, so
// they are deliberately absent from this table.
//
// spec.md leaves the exact prefix table unspecified ("certain 3- and
// 4-digit prefix families"); this table is the Open Question decision,
// grounded on the public Swedish organisationsnummer numbering
// convention rather than on any example repo.
var eligiblePrefixes = map[string]bool{
	"55": true, "56": true, "59": true,
	"69": true,
	"71": true, "76": true, "77": true, "78": true, "79": true,
	"80": true, "81": true, "82": true, "83": true, "84": true,
	"85": true, "86": true, "87": true, "88": true, "89": true,
	"92": true, "93": true,
}

// IsEligible classifies a 10-digit organisation number as likely
// registered with this registry. The third digit of a Swedish
// organisationsnummer is always >= 2 (a personal identity number's third
// digit is the first digit of a birth month, 0 or 1); any number failing
// that check is almost certainly a personnummer-keyed sole trader, which
// this registry has no annual-report filings for.
func IsEligible(orgNr string) bool {
	if len(orgNr) != 10 {
		return false
	}
	thirdDigit, err := strconv.Atoi(orgNr[2:3])
	if err != nil || thirdDigit < 2 {
		return false
	}
	return eligiblePrefixes[orgNr[:2]]
}
