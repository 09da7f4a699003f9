package cloud

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is an in-memory Adapter for tests. Every call is counted by
// method name, and errors can be queued per method to script failures.
// Mutating calls apply their effect to the in-memory fleet so that
// revert paths observe realistic state.
type Fake struct {
	mu        sync.Mutex
	instances map[string]*Instance
	nodes     map[string]*ComputeNode // keyed by hostname
	volumes   map[string]*Volume
	calls     map[string]int
	errs      map[string][]error
}

// NewFake returns an empty fleet.
func NewFake() *Fake {
	return &Fake{
		instances: make(map[string]*Instance),
		nodes:     make(map[string]*ComputeNode),
		volumes:   make(map[string]*Volume),
		calls:     make(map[string]int),
		errs:      make(map[string][]error),
	}
}

// AddInstance seeds a server.
func (f *Fake) AddInstance(inst Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := inst
	f.instances[inst.UUID] = &c
}

// AddNode seeds a hypervisor.
func (f *Fake) AddNode(node ComputeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := node
	f.nodes[node.Hostname] = &c
}

// AddVolume seeds a volume.
func (f *Fake) AddVolume(vol Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := vol
	f.volumes[vol.UUID] = &c
}

// QueueError makes the next call to the named method return err.
// Queued errors are consumed in FIFO order; queue a nil to let one
// call through before a scripted failure.
func (f *Fake) QueueError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], err)
}

// CallCount returns how many times the named method was invoked.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Instance returns a copy of the seeded server, or nil.
func (f *Fake) Instance(id string) *Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[id]; ok {
		c := *inst
		return &c
	}
	return nil
}

// Node returns a copy of the seeded hypervisor, or nil.
func (f *Fake) Node(hostname string) *ComputeNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if node, ok := f.nodes[hostname]; ok {
		c := *node
		return &c
	}
	return nil
}

// Volume returns a copy of the seeded volume, or nil.
func (f *Fake) Volume(id string) *Volume {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vol, ok := f.volumes[id]; ok {
		c := *vol
		return &c
	}
	return nil
}

// record bumps the call counter and pops a scripted error, if any.
// Caller must hold f.mu.
func (f *Fake) record(method string) error {
	f.calls[method]++
	if queue := f.errs[method]; len(queue) > 0 {
		err := queue[0]
		f.errs[method] = queue[1:]
		return err
	}
	return nil
}

func (f *Fake) GetInstance(_ context.Context, id string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetInstance"); err != nil {
		return nil, err
	}
	inst, ok := f.instances[id]
	if !ok {
		return nil, &InstanceNotFoundError{ID: id}
	}
	c := *inst
	return &c, nil
}

func (f *Fake) FindInstance(_ context.Context, id string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FindInstance"); err != nil {
		return nil, err
	}
	inst, ok := f.instances[id]
	if !ok {
		return nil, nil
	}
	c := *inst
	return &c, nil
}

func (f *Fake) ListInstances(_ context.Context, host string) ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListInstances"); err != nil {
		return nil, err
	}
	var out []Instance
	for _, inst := range f.instances {
		if host == "" || inst.Host == host {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

// pickDestination chooses the first enabled node other than exclude,
// in hostname order. Caller must hold f.mu.
func (f *Fake) pickDestination(exclude string) string {
	names := make([]string, 0, len(f.nodes))
	for name := range f.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name != exclude && f.nodes[name].Status == ServiceEnabled {
			return name
		}
	}
	return ""
}

func (f *Fake) migrate(method, id, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method); err != nil {
		return err
	}
	inst, ok := f.instances[id]
	if !ok {
		return &InstanceNotFoundError{ID: id}
	}
	if destination == "" {
		destination = f.pickDestination(inst.Host)
	}
	if destination == "" {
		return &ComputeNodeNotFoundError{Ref: "no enabled destination"}
	}
	inst.Host = destination
	return nil
}

func (f *Fake) LiveMigrateInstance(_ context.Context, id, destination string) error {
	return f.migrate("LiveMigrateInstance", id, destination)
}

func (f *Fake) ColdMigrateInstance(_ context.Context, id, destination string) error {
	return f.migrate("ColdMigrateInstance", id, destination)
}

func (f *Fake) AbortLiveMigration(_ context.Context, id, source, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AbortLiveMigration"); err != nil {
		return err
	}
	inst, ok := f.instances[id]
	if !ok {
		return &InstanceNotFoundError{ID: id}
	}
	inst.Host = source
	return nil
}

func (f *Fake) ResizeInstance(_ context.Context, id, flavor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ResizeInstance"); err != nil {
		return err
	}
	inst, ok := f.instances[id]
	if !ok {
		return &InstanceNotFoundError{ID: id}
	}
	inst.Flavor = flavor
	return nil
}

func (f *Fake) setInstanceState(method, id, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method); err != nil {
		return err
	}
	inst, ok := f.instances[id]
	if !ok {
		return &InstanceNotFoundError{ID: id}
	}
	inst.State = state
	return nil
}

func (f *Fake) StartInstance(_ context.Context, id string) error {
	return f.setInstanceState("StartInstance", id, InstanceActive)
}

func (f *Fake) StopInstance(_ context.Context, id string) error {
	return f.setInstanceState("StopInstance", id, InstanceStopped)
}

func (f *Fake) WaitForInstanceState(_ context.Context, id, target string, _ int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WaitForInstanceState"); err != nil {
		return err
	}
	inst, ok := f.instances[id]
	if !ok {
		return &InstanceNotFoundError{ID: id}
	}
	if inst.State != target {
		return &TransientError{Err: &stateMismatchError{id: id, want: target, got: inst.State}}
	}
	return nil
}

type stateMismatchError struct {
	id, want, got string
}

func (e *stateMismatchError) Error() string {
	return "instance " + e.id + " in state " + e.got + ", want " + e.want
}

func (f *Fake) GetComputeNodeByHostname(_ context.Context, hostname string) (*ComputeNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetComputeNodeByHostname"); err != nil {
		return nil, err
	}
	node, ok := f.nodes[hostname]
	if !ok {
		return nil, &ComputeNodeNotFoundError{Ref: hostname}
	}
	c := *node
	return &c, nil
}

func (f *Fake) GetComputeNodeByUUID(_ context.Context, uuid string) (*ComputeNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetComputeNodeByUUID"); err != nil {
		return nil, err
	}
	for _, node := range f.nodes {
		if node.UUID == uuid {
			c := *node
			return &c, nil
		}
	}
	return nil, &ComputeNodeNotFoundError{Ref: uuid}
}

func (f *Fake) ListComputeNodes(_ context.Context) ([]ComputeNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListComputeNodes"); err != nil {
		return nil, err
	}
	out := make([]ComputeNode, 0, len(f.nodes))
	for _, node := range f.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

func (f *Fake) setServiceStatus(method, host, status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method); err != nil {
		return err
	}
	node, ok := f.nodes[host]
	if !ok {
		return &ComputeNodeNotFoundError{Ref: host}
	}
	node.Status = status
	node.DisabledReason = reason
	return nil
}

func (f *Fake) EnableService(_ context.Context, host string) error {
	return f.setServiceStatus("EnableService", host, ServiceEnabled, "")
}

func (f *Fake) DisableService(_ context.Context, host, reason string) error {
	return f.setServiceStatus("DisableService", host, ServiceDisabled, reason)
}

func (f *Fake) GetVolume(_ context.Context, id string) (*Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetVolume"); err != nil {
		return nil, err
	}
	vol, ok := f.volumes[id]
	if !ok {
		return nil, &VolumeNotFoundError{ID: id}
	}
	c := *vol
	return &c, nil
}

func (f *Fake) MigrateVolume(_ context.Context, id, destinationPool string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MigrateVolume"); err != nil {
		return err
	}
	vol, ok := f.volumes[id]
	if !ok {
		return &VolumeNotFoundError{ID: id}
	}
	vol.Host = destinationPool
	return nil
}

func (f *Fake) RetypeVolume(_ context.Context, id, newType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetypeVolume"); err != nil {
		return err
	}
	vol, ok := f.volumes[id]
	if !ok {
		return &VolumeNotFoundError{ID: id}
	}
	vol.Type = newType
	return nil
}

func (f *Fake) WaitForVolumeStatus(_ context.Context, id, target string, _ int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WaitForVolumeStatus"); err != nil {
		return err
	}
	vol, ok := f.volumes[id]
	if !ok {
		return &VolumeNotFoundError{ID: id}
	}
	if vol.Status != target {
		return &TransientError{Err: &stateMismatchError{id: id, want: target, got: vol.Status}}
	}
	return nil
}
