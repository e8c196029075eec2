package g2rpc

import "net"

// parseAddr turns the string form of a remote address, as delivered by
// http.Request.RemoteAddr, back into a net.Addr for Peer.
func parseAddr(s string) (net.Addr, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return &net.TCPAddr{}, err
	}
	return &net.TCPAddr{IP: net.ParseIP(host), Port: atoiOrZero(port)}, nil
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
