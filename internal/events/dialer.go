package events

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	log "github.com/sirupsen/logrus"
)

// NewDialer builds a kafka dialer. Credentials switch on SASL/PLAIN, and
// SASL or a CA certificate switch on TLS (managed brokers require both).
func NewDialer(username, password, caCert string) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if username != "" && password != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: username, Password: password}
		log.WithField("username", username).Info("kafka: SASL/PLAIN enabled")
	}

	if dialer.SASLMechanism == nil && caCert == "" {
		return dialer
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCert)) {
			tlsConfig.RootCAs = pool
		} else {
			log.Warn("kafka: could not parse CA certificate, using system roots")
		}
	}
	dialer.TLS = tlsConfig
	return dialer
}

// ParseBrokers splits a comma separated broker list, ignoring blanks.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
