package web

import "sync/atomic"

// userAgents identifies the fetcher the way Wikimedia asks bots to, followed
// by common desktop browsers for mirrors that reject unknown agents.
var userAgents = []string{
	"wikicache/0.1 (+https://github.com/leonardcser/wikicache) colly/2",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0",
}

var uaCounter atomic.Uint64

// NextUserAgent rotates through userAgents round-robin.
func NextUserAgent() string {
	idx := uaCounter.Add(1) - 1
	return userAgents[idx%uint64(len(userAgents))]
}
