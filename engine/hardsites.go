package engine

import "strings"

// hardSites are domains known for aggressive anti-bot protection. They skip
// the plain HTTP/2 tier and unlock the referrer-chain and pre-warm tiers.
var hardSites = []string{
	"amazon.com",
	"amazon.in",
	"amazon.co.uk",
	"amazon.de",
	"amazon.ca",
	"linkedin.com",
	"glassdoor.com",
	"indeed.com",
	"zillow.com",
	"realtor.com",
	"redfin.com",
	"ticketmaster.com",
	"stubhub.com",
	"cloudflare.com",
	"datadome.co",
	"akamai.com",
	"nike.com",
	"footlocker.com",
	"bestbuy.com",
	"walmart.com",
	"target.com",
	"lowes.com",
	"homedepot.com",
	"crunchbase.com",
	"g2.com",
	"similarweb.com",
}

// IsHardSite reports whether the URL's host is (or is a subdomain of) a
// known hard site.
func IsHardSite(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, domain := range hardSites {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
