package metadata

var schemePorts = map[string]uint16{
	"ftp":    21,
	"ssh":    22,
	"telnet": 23,
	"smtp":   25,
	"dns":    53,
	"http":   80,
	"ws":     80,
	"nntp":   119,
	"imap":   143,
	"ldap":   389,
	"https":  443,
	"wss":    443,
	"smtps":  465,
	"rtsp":   554,
	"ldaps":  636,
	"dnss":   853,
	"imaps":  993,
	"sip":    5060,
	"sips":   5061,
	"xmpp":   5222,
}

// PortFromScheme returns the well-known port of a URL scheme, or 0.
func PortFromScheme(scheme string) uint16 {
	return schemePorts[scheme]
}
