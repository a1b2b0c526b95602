package gerritssh

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/levenlabs/go-llog"
)

// Client holds the necessary params to connect to a gerrit instance over
// ssh
type Client struct {
	privateKey ssh.Signer
	hostKey    ssh.PublicKey
	user       string
	addr       string

	// KeepaliveInterval, if non-zero, is how often a keepalive request is
	// sent on the connection, whether or not other traffic is flowing.
	KeepaliveInterval time.Duration
	// KeepaliveMaxMissed is how many consecutive unanswered keepalives are
	// tolerated before the connection is forced closed to trigger a
	// reconnect.
	KeepaliveMaxMissed int
}

// NewClient returns a new Client authenticated with the given private
// key (RSA or DSA, PEM-encoded). hostKey may be nil/empty, in which case
// the host key is not verified (operators should prefer supplying one).
func NewClient(sshAddr, user string, privateKey, hostKey []byte) (*Client, error) {
	k, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	c := &Client{
		privateKey:         k,
		user:               user,
		addr:               sshAddr,
		KeepaliveInterval:  30 * time.Second,
		KeepaliveMaxMissed: 3,
	}

	if len(hostKey) > 0 {
		hk, _, _, _, err := ssh.ParseAuthorizedKey(hostKey)
		if err != nil {
			return nil, fmt.Errorf("parsing host key: %w", err)
		}
		c.hostKey = hk
	} else {
		llog.Warn("no gerrit host key configured, ssh host key will not be verified", llog.KV{"addr": sshAddr})
	}

	return c, nil
}

func (s *Client) clientConfig() *ssh.ClientConfig {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	var algos []string
	if s.hostKey != nil {
		hostKeyCallback = ssh.FixedHostKey(s.hostKey)
		algos = []string{s.hostKey.Type()}
	}
	return &ssh.ClientConfig{
		User: s.user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(s.privateKey),
		},
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: algos,
		Timeout:           10 * time.Second,
	}
}

// DialConn opens the underlying ssh connection, without starting a session.
// Callers that need to send connection-level keepalives (Run) use this;
// Dial is a convenience for callers (and tests) that only need one session.
func (s *Client) DialConn() (*ssh.Client, error) {
	return ssh.Dial("tcp", s.addr, s.clientConfig())
}

// Dial connects to gerrit over ssh and returns a new session
func (s *Client) Dial() (*ssh.Session, error) {
	c, err := s.DialConn()
	if err != nil {
		return nil, err
	}
	return c.NewSession()
}
