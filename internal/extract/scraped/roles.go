package scraped

import (
	"strings"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// allabolagRoleMappings maps the (sometimes transliterated, sometimes
// properly accented) Swedish role strings allabolag.se's API returns onto
// the registry's fixed NormalizedRole vocabulary. Kept separate from
// xbrl's roleMappings because the two sources spell roles differently
// (allabolag drops diacritics in some fields but not others) and merging
// the tables would make either source's false positives bleed into the
// other.
var allabolagRoleMappings = map[string]models.NormalizedRole{
	"verkstallande direktor":      models.RoleCEO,
	"verkställande direktör":      models.RoleCEO,
	"vd":                          models.RoleCEO,
	"vice verkstallande direktor": models.RoleViceCEO,
	"vice vd":                     models.RoleViceCEO,
	"styrelseordforande":          models.RoleBoardChair,
	"styrelseordförande":          models.RoleBoardChair,
	"ordforande":                  models.RoleBoardChair,
	"ordförande":                  models.RoleBoardChair,
	"ledamot":                     models.RoleBoardMember,
	"styrelseledamot":             models.RoleBoardMember,
	"suppleant":                   models.RoleBoardAlternate,
	"styrelsesuppleant":           models.RoleBoardAlternate,
	"arbetstagarrepresentant":     models.RoleEmployeeRep,
	"extern ledamot":              models.RoleExternalMember,
	"revisor":                     models.RoleAuditor,
	"huvudansvarig revisor":       models.RoleAuditorPrincipal,
	"godkand revisor":             models.RoleAuditorApproved,
	"godkänd revisor":             models.RoleAuditorApproved,
	"auktoriserad revisor":        models.RoleAuditorAuthorized,
}

func normalizeAllabolagRole(role string) models.NormalizedRole {
	lower := strings.ToLower(strings.TrimSpace(role))
	if normalized, ok := allabolagRoleMappings[lower]; ok {
		return normalized
	}
	for pattern, normalized := range allabolagRoleMappings {
		if strings.Contains(lower, pattern) {
			return normalized
		}
	}
	return models.RoleUnknown
}
