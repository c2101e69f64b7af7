// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package config loads the YAML configuration of the data plane.
package config

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/nextmn/upf-dataplane/api"
	"github.com/nextmn/upf-dataplane/nexthop"
	"github.com/nextmn/upf-dataplane/pfcprules"
	"github.com/nextmn/upf-dataplane/session"
)

const DefaultLogLevel = "info"

type Config struct {
	SelfAddress      string        `yaml:"self-address"`
	LocalMAC         string        `yaml:"local-mac"`
	NextHop          NextHop       `yaml:"next-hop"`
	MaxPDRPerSession int           `yaml:"max-pdr-per-session"`
	Log              Log           `yaml:"log"`
	Metrics          *Metrics      `yaml:"metrics,omitempty"`
	N4               *N4           `yaml:"n4,omitempty"`
	Sessions         []SessionConf `yaml:"sessions,omitempty"`
}

// NextHop selects how the destination MAC of decapsulated packets is chosen.
// Exactly one of StaticMAC and NeighborCache must be set.
type NextHop struct {
	StaticMAC     string         `yaml:"static-mac,omitempty"`
	NeighborCache *NeighborCache `yaml:"neighbor-cache,omitempty"`
}

type NeighborCache struct {
	Interface string        `yaml:"interface"`
	Refresh   time.Duration `yaml:"refresh,omitempty"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

type N4 struct {
	Listen string `yaml:"listen"`
	NodeID string `yaml:"node-id"`
}

type SessionConf struct {
	SEID uint64    `yaml:"seid"`
	FARs []FARConf `yaml:"fars"`
	PDRs []PDRConf `yaml:"pdrs"`
}

type FARConf struct {
	ID          uint32                `yaml:"id"`
	ApplyAction pfcprules.ApplyAction `yaml:"apply-action"`
}

// PDRConf matches on UEAddress when it is set, on TEID otherwise.
type PDRConf struct {
	ID                 uint16                       `yaml:"id"`
	Precedence         uint32                       `yaml:"precedence,omitempty"`
	TEID               uint32                       `yaml:"teid,omitempty"`
	UEAddress          string                       `yaml:"ue-address,omitempty"`
	OuterHeaderRemoval pfcprules.OuterHeaderRemoval `yaml:"outer-header-removal,omitempty"`
	FARID              *uint32                      `yaml:"far-id,omitempty"`
}

// Parse decodes a configuration document, fills defaults and validates it.
func Parse(data []byte) (*Config, error) {
	conf := &Config{}
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return nil, errors.Wrap(err, "could not decode configuration")
	}
	conf.setDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read configuration file %s", path)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration file %s", path)
	}
	return conf, nil
}

func (c *Config) setDefaults() {
	if c.MaxPDRPerSession == 0 {
		c.MaxPDRPerSession = session.DefaultMaxPDR
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.NextHop.NeighborCache != nil && c.NextHop.NeighborCache.Refresh == 0 {
		c.NextHop.NeighborCache.Refresh = nexthop.DefaultRefresh
	}
	if c.N4 != nil && c.N4.NodeID == "" {
		c.N4.NodeID = c.N4.Listen
	}
}

func (c *Config) Validate() error {
	if _, err := c.SelfAddressBytes(); err != nil {
		return err
	}
	if _, err := c.LocalMACBytes(); err != nil {
		return err
	}
	if c.MaxPDRPerSession < 1 {
		return errors.Errorf("max-pdr-per-session must be positive, got %d", c.MaxPDRPerSession)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch {
	case c.NextHop.StaticMAC != "" && c.NextHop.NeighborCache != nil:
		return errors.New("next-hop: static-mac and neighbor-cache are mutually exclusive")
	case c.NextHop.StaticMAC != "":
		if _, err := c.StaticMACBytes(); err != nil {
			return err
		}
	case c.NextHop.NeighborCache != nil:
		if c.NextHop.NeighborCache.Interface == "" {
			return errors.New("next-hop.neighbor-cache.interface is required")
		}
		if c.NextHop.NeighborCache.Refresh < 0 {
			return errors.New("next-hop.neighbor-cache.refresh must not be negative")
		}
	default:
		return errors.New("next-hop: one of static-mac or neighbor-cache is required")
	}
	if c.Metrics != nil && c.Metrics.Listen == "" {
		return errors.New("metrics.listen is required")
	}
	if c.N4 != nil {
		if net.ParseIP(c.N4.Listen) == nil {
			return errors.Errorf("n4.listen: invalid IP address %q", c.N4.Listen)
		}
	}
	seen := make(map[uint64]struct{}, len(c.Sessions))
	for _, s := range c.Sessions {
		if _, ok := seen[s.SEID]; ok {
			return errors.Errorf("sessions: duplicate seid %d", s.SEID)
		}
		seen[s.SEID] = struct{}{}
		if len(s.PDRs) > c.MaxPDRPerSession {
			return errors.Errorf("session %d: %d PDRs exceed max-pdr-per-session (%d)", s.SEID, len(s.PDRs), c.MaxPDRPerSession)
		}
		for _, pdr := range s.PDRs {
			if _, err := pdr.Match(); err != nil {
				return errors.WithMessagef(err, "session %d: PDR %d", s.SEID, pdr.ID)
			}
		}
	}
	return nil
}

func parseIPv4(s string) ([4]byte, error) {
	var addr [4]byte
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return addr, errors.Errorf("invalid IPv4 address %q", s)
	}
	copy(addr[:], ip)
	return addr, nil
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, errors.Wrapf(err, "invalid MAC address %q", s)
	}
	if len(hw) != len(mac) {
		return mac, errors.Errorf("invalid MAC address %q: not EUI-48", s)
	}
	copy(mac[:], hw)
	return mac, nil
}

func (c *Config) SelfAddressBytes() ([4]byte, error) {
	addr, err := parseIPv4(c.SelfAddress)
	return addr, errors.WithMessage(err, "self-address")
}

func (c *Config) LocalMACBytes() ([6]byte, error) {
	mac, err := parseMAC(c.LocalMAC)
	return mac, errors.WithMessage(err, "local-mac")
}

func (c *Config) StaticMACBytes() ([6]byte, error) {
	mac, err := parseMAC(c.NextHop.StaticMAC)
	return mac, errors.WithMessage(err, "next-hop.static-mac")
}

func (c *Config) LogLevel() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	return level, errors.Wrap(err, "log.level")
}

// NewLogger returns a logger at the configured level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	return logger, nil
}

// Match returns the packet detection information of the PDR.
func (p PDRConf) Match() (pfcprules.Match, error) {
	switch {
	case p.TEID != 0 && p.UEAddress != "":
		return pfcprules.Match{}, errors.New("teid and ue-address are mutually exclusive")
	case p.UEAddress != "":
		addr, err := parseIPv4(p.UEAddress)
		if err != nil {
			return pfcprules.Match{}, errors.WithMessage(err, "ue-address")
		}
		return pfcprules.UEAddressMatch(addr), nil
	default:
		return pfcprules.TEIDMatch(p.TEID), nil
	}
}

func (p PDRConf) PDR() (pfcprules.PDR, error) {
	match, err := p.Match()
	if err != nil {
		return pfcprules.PDR{}, err
	}
	pdr := pfcprules.PDR{
		ID:                 p.ID,
		Precedence:         p.Precedence,
		Match:              match,
		OuterHeaderRemoval: p.OuterHeaderRemoval,
	}
	if p.FARID != nil {
		pdr.FARID = *p.FARID
		pdr.HasFAR = true
	}
	return pdr, nil
}

// Provision installs the statically configured sessions into table.
// Each session is installed atomically: FARs first, then PDRs.
func (c *Config) Provision(table *session.Table, logger logrus.FieldLogger) error {
	for _, s := range c.Sessions {
		seid := api.SEID(s.SEID)
		if _, err := table.CreateSession(seid); err != nil {
			return errors.Wrapf(err, "could not create session %d", s.SEID)
		}
		err := table.Modify(seid, func(tx *session.Tx) error {
			for _, f := range s.FARs {
				var fp *pfcprules.ForwardingParameters
				if f.ApplyAction == pfcprules.ApplyActionForward {
					fp = &pfcprules.ForwardingParameters{}
				}
				if err := tx.UpsertFAR(pfcprules.NewFAR(f.ID, f.ApplyAction, fp)); err != nil {
					return errors.Wrapf(err, "FAR %d", f.ID)
				}
			}
			for _, p := range s.PDRs {
				pdr, err := p.PDR()
				if err != nil {
					return errors.WithMessagef(err, "PDR %d", p.ID)
				}
				if err := tx.UpsertPDR(pdr); err != nil {
					return errors.Wrapf(err, "PDR %d", p.ID)
				}
			}
			return nil
		})
		if err != nil {
			if errDel := table.DeleteSession(seid); errDel != nil {
				logger.WithError(errDel).WithFields(logrus.Fields{"seid": s.SEID}).Warn("Could not roll back session")
			}
			return errors.WithMessagef(err, "session %d", s.SEID)
		}
		logger.WithFields(logrus.Fields{
			"seid": s.SEID,
			"pdrs": len(s.PDRs),
			"fars": len(s.FARs),
		}).Info("Provisioned static session")
	}
	return nil
}
