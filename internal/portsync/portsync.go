// Package portsync creates the port objects of a device from the physical
// entities the device reports over SNMP (ENTITY-MIB).
package portsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"kuwaiba/osp-core/internal/classes"
	"kuwaiba/osp-core/internal/connectivity"
	"kuwaiba/osp-core/internal/metrics"
	"kuwaiba/osp-core/internal/naming"
)

const (
	oidEntPhysicalDescr = "1.3.6.1.2.1.47.1.1.1.1.2"
	oidEntPhysicalClass = "1.3.6.1.2.1.47.1.1.1.1.5"
	oidEntPhysicalName  = "1.3.6.1.2.1.47.1.1.1.1.7"

	// entPhysicalClass port(10)
	physicalClassPort = 10
)

var ErrNoAddress = errors.New("device address is required")

// Entity is one row of entPhysicalTable that describes a port.
type Entity struct {
	Index int
	Name  string
}

// Result reports what a sync did.
type Result struct {
	Device  connectivity.Ref   `json:"device"`
	Created []connectivity.Ref `json:"created"`
	Present []string           `json:"present"`
	Skipped int                `json:"skipped"`
}

type Syncer struct {
	Store     connectivity.Store
	Metadata  connectivity.Metadata
	Walker    Walker
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
	PortClass string
}

// ReadPorts walks entPhysicalClass and keeps the port rows, naming each from
// entPhysicalName, falling back to entPhysicalDescr. Rows with no usable
// name are dropped and counted. A failed description walk is logged and
// ignored unless ctx is done.
func ReadPorts(ctx context.Context, log zerolog.Logger, w Walker, address string) ([]Entity, int, error) {
	classPDUs, err := w.Walk(ctx, address, oidEntPhysicalClass)
	if err != nil {
		return nil, 0, fmt.Errorf("walk entPhysicalClass: %w", err)
	}
	ports := make(map[int][]naming.Candidate)
	for _, p := range classPDUs {
		idx, ok := lastOIDIndex(p.Name)
		if !ok {
			continue
		}
		if class, ok := pduInt(p); ok && class == physicalClassPort {
			ports[idx] = nil
		}
	}
	if len(ports) == 0 {
		return nil, 0, nil
	}

	collect := func(oid, source string) error {
		pdus, err := w.Walk(ctx, address, oid)
		if err != nil {
			return err
		}
		for _, p := range pdus {
			idx, ok := lastOIDIndex(p.Name)
			if !ok {
				continue
			}
			if _, isPort := ports[idx]; !isPort {
				continue
			}
			if s, ok := pduString(p); ok {
				ports[idx] = append(ports[idx], naming.Candidate{Name: s, Source: source})
			}
		}
		return nil
	}
	if err := collect(oidEntPhysicalName, naming.SourceEntPhysicalName); err != nil {
		return nil, 0, fmt.Errorf("walk entPhysicalName: %w", err)
	}
	// Descriptions are optional on many agents.
	if err := collect(oidEntPhysicalDescr, naming.SourceEntPhysicalDescr); err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("walk entPhysicalDescr: %w", err)
		}
		log.Debug().Err(err).Str("address", address).Msg("entPhysicalDescr walk failed; using names only")
	}

	out := make([]Entity, 0, len(ports))
	skipped := 0
	for idx, candidates := range ports {
		name, ok := naming.ChooseBestDisplayName(candidates)
		if !ok {
			skipped++
			continue
		}
		out = append(out, Entity{Index: idx, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := naming.Compare(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].Index < out[j].Index
	})
	return out, skipped, nil
}

// Sync reads the device's ports at address and creates the ones missing from
// the inventory. Existing ports are matched by name, case-insensitively, so a
// repeated sync creates nothing.
func (s *Syncer) Sync(ctx context.Context, device connectivity.Ref, address string) (Result, error) {
	res, err := s.sync(ctx, device, address)
	if err != nil {
		s.Metrics.IncPortSync("error")
		s.Log.Warn().Err(err).Str("device", device.Key()).Str("address", address).Msg("port sync failed")
		return Result{}, err
	}
	s.Metrics.IncPortSync("ok")
	s.Log.Info().
		Str("device", device.Key()).
		Int("created", len(res.Created)).
		Int("present", len(res.Present)).
		Int("skipped", res.Skipped).
		Msg("port sync complete")
	return res, nil
}

func (s *Syncer) sync(ctx context.Context, device connectivity.Ref, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, ErrNoAddress
	}
	devObj, err := s.Store.GetObject(ctx, device)
	if err != nil {
		return Result{}, connectivity.Persist("get device", err)
	}
	device = devObj.Ref

	existing, err := s.existingPorts(ctx, device)
	if err != nil {
		return Result{}, err
	}
	entities, skipped, err := ReadPorts(ctx, s.Log, s.Walker, address)
	if err != nil {
		return Result{}, err
	}

	class := s.PortClass
	if class == "" {
		class = classes.OpticalPort
	}
	res := Result{Device: device, Skipped: skipped}
	for _, e := range entities {
		key := strings.ToLower(e.Name)
		if _, ok := existing[key]; ok {
			res.Present = append(res.Present, e.Name)
			continue
		}
		ref, err := s.Store.CreateObject(ctx, class, device, map[string]string{connectivity.AttrName: e.Name})
		if err != nil {
			return Result{}, connectivity.Persist("create port", err)
		}
		if ref.Name == "" {
			ref.Name = e.Name
		}
		existing[key] = struct{}{}
		res.Created = append(res.Created, ref)
	}
	return res, nil
}

// existingPorts returns the lower-cased names of every port below device.
func (s *Syncer) existingPorts(ctx context.Context, device connectivity.Ref) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	queue := []connectivity.Ref{device}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := s.Store.GetObjectChildren(ctx, cur)
		if err != nil {
			return nil, connectivity.Persist("get device children", err)
		}
		for _, c := range children {
			isPort, err := s.Metadata.IsSubclassOf(ctx, classes.GenericPort, c.Class)
			if err != nil {
				return nil, err
			}
			if isPort {
				out[strings.ToLower(c.Name)] = struct{}{}
			}
			queue = append(queue, c.Ref)
		}
	}
	return out, nil
}

var _ Walker = (*Client)(nil)
