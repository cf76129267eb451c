package scanning

// wellKnownPorts maps common TCP port numbers to their conventional service
// names, following the IANA registry names used by /etc/services.
var wellKnownPorts = map[int]string{
	20:    "ftp-data",
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "domain",
	80:    "http",
	88:    "kerberos",
	110:   "pop3",
	111:   "sunrpc",
	119:   "nntp",
	123:   "ntp",
	135:   "epmap",
	139:   "netbios-ssn",
	143:   "imap",
	179:   "bgp",
	389:   "ldap",
	443:   "https",
	445:   "microsoft-ds",
	465:   "submissions",
	514:   "shell",
	587:   "submission",
	631:   "ipp",
	636:   "ldaps",
	873:   "rsync",
	993:   "imaps",
	995:   "pop3s",
	1080:  "socks",
	1433:  "ms-sql-s",
	1521:  "ncube-lm",
	1723:  "pptp",
	1883:  "mqtt",
	2049:  "nfs",
	3306:  "mysql",
	3389:  "ms-wbt-server",
	5060:  "sip",
	5432:  "postgresql",
	5672:  "amqp",
	5900:  "rfb",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "https-alt",
	9200:  "wap-wsp",
	11211: "memcache",
	27017: "mongodb",
}

// LookupService returns the conventional service name for port, or nil when
// the port is not in the well-known table.
func LookupService(port int) *string {
	name, ok := wellKnownPorts[port]
	if !ok {
		return nil
	}
	return &name
}
