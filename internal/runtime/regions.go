// Package runtime assembles the gateway's long-lived collaborators — the
// PersistentStore, the ManagerRegistry's identity factory, the Token
// Allocation Core, the background HealthChecker, and the HTTP surface — into
// one Runtime the entrypoint can start and stop as a unit.
//
// Grounded on the teacher's pkg/backend.Server, which plays the same role for
// the teacher's own process (one struct owning every long-lived collaborator,
// constructed once in NewServer/main and driven by Start/Shutdown).
package runtime

// regionHosts is the per-region {refresh_url, api_host, q_host} triple a
// credential.Manager needs (SPEC_FULL.md glossary: "region selects
// refresh_url, api_host, q_host"). original_source/kiro_gateway/auth.py reads
// these from a region-config helper that import-prunes out of the retrieved
// source (get_kiro_refresh_url/get_kiro_api_host/get_kiro_q_host are called
// but never defined in the 6 files kept); this table reproduces their role
// with the regions the spec itself names.
type regionHosts struct {
	refreshURL string
	apiHost    string
	qHost      string
}

var regionTable = map[string]regionHosts{
	"us-east-1": {
		refreshURL: "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken",
		apiHost:    "https://codewhisperer.us-east-1.amazonaws.com",
		qHost:      "https://q.us-east-1.amazonaws.com",
	},
	"eu-central-1": {
		refreshURL: "https://prod.eu-central-1.auth.desktop.kiro.dev/refreshToken",
		apiHost:    "https://codewhisperer.eu-central-1.amazonaws.com",
		qHost:      "https://q.eu-central-1.amazonaws.com",
	},
	"ap-southeast-1": {
		refreshURL: "https://prod.ap-southeast-1.auth.desktop.kiro.dev/refreshToken",
		apiHost:    "https://codewhisperer.ap-southeast-1.amazonaws.com",
		qHost:      "https://q.ap-southeast-1.amazonaws.com",
	},
}

// hostsForRegion looks up the host triple for region, falling back to
// us-east-1 for an unrecognized region rather than failing identity
// construction outright — an operator-misconfigured region shouldn't take an
// otherwise-healthy identity out of the pool.
func hostsForRegion(region string) regionHosts {
	if hosts, ok := regionTable[region]; ok {
		return hosts
	}
	return regionTable["us-east-1"]
}
