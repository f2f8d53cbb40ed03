package portsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

type Config struct {
	Community      string
	Version        string // "2c" (default) | "1"
	Port           uint16
	Timeout        time.Duration
	Retries        int
	MaxRepetitions uint32
}

// Walker walks one SNMP table column on a device.
type Walker interface {
	Walk(ctx context.Context, address, baseOID string) ([]gosnmp.SnmpPDU, error)
}

// Client is the gosnmp-backed Walker.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Community) == "" {
		cfg.Community = "public"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "2c"
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.MaxRepetitions == 0 {
		cfg.MaxRepetitions = 10
	}
	return &Client{cfg: cfg}
}

func (c *Client) connect(ctx context.Context, address string) (*gosnmp.GoSNMP, error) {
	var version gosnmp.SnmpVersion
	switch strings.ToLower(strings.TrimSpace(c.cfg.Version)) {
	case "2c", "v2c", "":
		version = gosnmp.Version2c
	case "1", "v1":
		version = gosnmp.Version1
	default:
		return nil, fmt.Errorf("unsupported snmp version %q", c.cfg.Version)
	}

	s := &gosnmp.GoSNMP{
		Context:        ctx,
		Target:         address,
		Port:           c.cfg.Port,
		Community:      c.cfg.Community,
		Version:        version,
		Timeout:        c.cfg.Timeout,
		Retries:        c.cfg.Retries,
		MaxRepetitions: c.cfg.MaxRepetitions,
	}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) Walk(ctx context.Context, address, baseOID string) ([]gosnmp.SnmpPDU, error) {
	if c == nil {
		return nil, errors.New("snmp client is nil")
	}
	s, err := c.connect(ctx, address)
	if err != nil {
		return nil, err
	}
	defer s.Conn.Close()

	if s.Version == gosnmp.Version1 {
		return s.WalkAll(baseOID)
	}
	return s.BulkWalkAll(baseOID)
}

func pduString(pdu gosnmp.SnmpPDU) (string, bool) {
	switch v := pdu.Value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case []byte:
		return strings.TrimSpace(string(v)), true
	default:
		return "", false
	}
}

func pduInt(pdu gosnmp.SnmpPDU) (int, bool) {
	switch v := pdu.Value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	default:
		return 0, false
	}
}

func lastOIDIndex(oid string) (int, bool) {
	oid = strings.TrimSpace(oid)
	i := strings.LastIndexByte(oid, '.')
	if i < 0 || i == len(oid)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(oid[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
