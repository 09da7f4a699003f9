package cloud

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/hypervisors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/services"

	"github.com/sirocco-cloud/sirocco/pkg/log"
)

// OpenStack implements Adapter over Nova and Cinder.
type OpenStack struct {
	compute *gophercloud.ServiceClient
	volume  *gophercloud.ServiceClient
}

// NewOpenStack authenticates from the standard OS_* environment and
// returns an adapter bound to the compute and block storage endpoints.
func NewOpenStack(ctx context.Context) (*OpenStack, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	opts.AllowReauth = true
	provider, err := openstack.AuthenticatedClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	eo := gophercloud.EndpointOpts{Region: os.Getenv("OS_REGION_NAME")}
	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, err
	}
	volume, err := openstack.NewBlockStorageV3(provider, eo)
	if err != nil {
		return nil, err
	}
	log.WithComponent("cloud").Debug().Msg("authenticated against openstack")
	return &OpenStack{compute: compute, volume: volume}, nil
}

var _ Adapter = (*OpenStack)(nil)

// classify sorts an error into the retryable and permanent buckets.
// 404s pass through untouched so callers can map them to the typed
// not-found errors of their resource.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var code gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &code) {
		if code.Actual >= http.StatusInternalServerError {
			return &TransientError{Err: err}
		}
		return err
	}
	// No HTTP response at all, treat as a connection problem.
	return &TransientError{Err: err}
}

func toInstance(s *servers.Server) *Instance {
	flavor := ""
	if v, ok := s.Flavor["original_name"].(string); ok {
		flavor = v
	} else if v, ok := s.Flavor["id"].(string); ok {
		flavor = v
	}
	return &Instance{
		UUID:   s.ID,
		Name:   s.Name,
		State:  s.Status,
		Host:   s.Host,
		Flavor: flavor,
	}
}

func (c *OpenStack) GetInstance(ctx context.Context, id string) (*Instance, error) {
	s, err := servers.Get(ctx, c.compute, id).Extract()
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &InstanceNotFoundError{ID: id}
		}
		return nil, classify(err)
	}
	return toInstance(s), nil
}

func (c *OpenStack) FindInstance(ctx context.Context, id string) (*Instance, error) {
	inst, err := c.GetInstance(ctx, id)
	if err != nil {
		var nf *InstanceNotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

func (c *OpenStack) ListInstances(ctx context.Context, host string) ([]Instance, error) {
	pages, err := servers.List(c.compute, servers.ListOpts{Host: host, AllTenants: true}).AllPages(ctx)
	if err != nil {
		return nil, classify(err)
	}
	list, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(list))
	for i := range list {
		out = append(out, *toInstance(&list[i]))
	}
	return out, nil
}

func (c *OpenStack) LiveMigrateInstance(ctx context.Context, id, destination string) error {
	opts := servers.LiveMigrateOpts{}
	if destination != "" {
		opts.Host = &destination
	}
	err := servers.LiveMigrate(ctx, c.compute, id, opts).ExtractErr()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &InstanceNotFoundError{ID: id}
	}
	return classify(err)
}

func (c *OpenStack) ColdMigrateInstance(ctx context.Context, id, destination string) error {
	// The plain migrate action ignores the destination; target hosts
	// need the raw request form.
	var body map[string]any
	if destination == "" {
		body = map[string]any{"migrate": nil}
	} else {
		body = map[string]any{"migrate": map[string]any{"host": destination}}
	}
	_, err := c.compute.Post(ctx, c.compute.ServiceURL("servers", id, "action"), body, nil,
		&gophercloud.RequestOpts{OkCodes: []int{http.StatusAccepted}})
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &InstanceNotFoundError{ID: id}
	}
	return classify(err)
}

func (c *OpenStack) AbortLiveMigration(ctx context.Context, id, _, _ string) error {
	var result struct {
		Migrations []struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		} `json:"migrations"`
	}
	_, err := c.compute.Get(ctx, c.compute.ServiceURL("servers", id, "migrations"), &result, nil)
	if err != nil {
		return classify(err)
	}
	for _, m := range result.Migrations {
		if m.Status != "running" && m.Status != "preparing" && m.Status != "queued" {
			continue
		}
		_, err = c.compute.Delete(ctx, c.compute.ServiceURL("servers", id, "migrations", strconv.Itoa(m.ID)),
			&gophercloud.RequestOpts{OkCodes: []int{http.StatusAccepted}})
		return classify(err)
	}
	return nil
}

func (c *OpenStack) ResizeInstance(ctx context.Context, id, flavor string) error {
	err := servers.Resize(ctx, c.compute, id, servers.ResizeOpts{FlavorRef: flavor}).ExtractErr()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &InstanceNotFoundError{ID: id}
	}
	return classify(err)
}

func (c *OpenStack) StartInstance(ctx context.Context, id string) error {
	err := servers.Start(ctx, c.compute, id).ExtractErr()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &InstanceNotFoundError{ID: id}
	}
	// Starting an already-active server returns 409. Idempotent.
	if gophercloud.ResponseCodeIs(err, http.StatusConflict) {
		return nil
	}
	return classify(err)
}

func (c *OpenStack) StopInstance(ctx context.Context, id string) error {
	err := servers.Stop(ctx, c.compute, id).ExtractErr()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &InstanceNotFoundError{ID: id}
	}
	if gophercloud.ResponseCodeIs(err, http.StatusConflict) {
		return nil
	}
	return classify(err)
}

func (c *OpenStack) WaitForInstanceState(ctx context.Context, id, target string, retries int, interval time.Duration) error {
	var lastState string
	for attempt := 0; attempt <= retries; attempt++ {
		inst, err := c.GetInstance(ctx, id)
		if err != nil {
			return err
		}
		if inst.State == target {
			return nil
		}
		lastState = inst.State
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return &TransientError{Err: &stateMismatchError{id: id, want: target, got: lastState}}
}

func toComputeNode(h *hypervisors.Hypervisor) *ComputeNode {
	node := &ComputeNode{
		UUID:         h.ID,
		Hostname:     h.HypervisorHostname,
		State:        h.State,
		Status:       h.Status,
		VCPUs:        h.VCPUs,
		VCPUsUsed:    int(h.VCPUsUsed),
		MemoryMB:     h.MemoryMB,
		MemoryMBUsed: h.MemoryMBUsed,
		DiskGB:       h.LocalGB,
	}
	node.DisabledReason = h.Service.DisabledReason
	return node
}

func (c *OpenStack) GetComputeNodeByHostname(ctx context.Context, hostname string) (*ComputeNode, error) {
	pages, err := hypervisors.List(c.compute, hypervisors.ListOpts{HypervisorHostnamePattern: &hostname}).AllPages(ctx)
	if err != nil {
		return nil, classify(err)
	}
	list, err := hypervisors.ExtractHypervisors(pages)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].HypervisorHostname == hostname {
			return toComputeNode(&list[i]), nil
		}
	}
	return nil, &ComputeNodeNotFoundError{Ref: hostname}
}

func (c *OpenStack) GetComputeNodeByUUID(ctx context.Context, uuid string) (*ComputeNode, error) {
	h, err := hypervisors.Get(ctx, c.compute, uuid).Extract()
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &ComputeNodeNotFoundError{Ref: uuid}
		}
		return nil, classify(err)
	}
	return toComputeNode(h), nil
}

func (c *OpenStack) ListComputeNodes(ctx context.Context) ([]ComputeNode, error) {
	pages, err := hypervisors.List(c.compute, hypervisors.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, classify(err)
	}
	list, err := hypervisors.ExtractHypervisors(pages)
	if err != nil {
		return nil, err
	}
	out := make([]ComputeNode, 0, len(list))
	for i := range list {
		out = append(out, *toComputeNode(&list[i]))
	}
	return out, nil
}

// computeServiceID resolves the nova-compute service record for host.
func (c *OpenStack) computeServiceID(ctx context.Context, host string) (string, error) {
	pages, err := services.List(c.compute, services.ListOpts{Binary: "nova-compute", Host: host}).AllPages(ctx)
	if err != nil {
		return "", classify(err)
	}
	list, err := services.ExtractServices(pages)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", &ComputeNodeNotFoundError{Ref: host}
	}
	return list[0].ID, nil
}

func (c *OpenStack) EnableService(ctx context.Context, host string) error {
	id, err := c.computeServiceID(ctx, host)
	if err != nil {
		return err
	}
	_, err = services.Update(ctx, c.compute, id, services.UpdateOpts{Status: services.ServiceEnabled}).Extract()
	return classify(err)
}

func (c *OpenStack) DisableService(ctx context.Context, host, reason string) error {
	id, err := c.computeServiceID(ctx, host)
	if err != nil {
		return err
	}
	opts := services.UpdateOpts{Status: services.ServiceDisabled, DisabledReason: reason}
	_, err = services.Update(ctx, c.compute, id, opts).Extract()
	return classify(err)
}

func (c *OpenStack) GetVolume(ctx context.Context, id string) (*Volume, error) {
	v, err := volumes.Get(ctx, c.volume, id).Extract()
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &VolumeNotFoundError{ID: id}
		}
		return nil, classify(err)
	}
	vol := &Volume{
		UUID:   v.ID,
		Name:   v.Name,
		Status: v.Status,
		Type:   v.VolumeType,
		Host:   v.Host,
		SizeGB: v.Size,
	}
	if len(v.Attachments) > 0 {
		vol.AttachedTo = v.Attachments[0].ServerID
	}
	return vol, nil
}

func (c *OpenStack) MigrateVolume(ctx context.Context, id, destinationPool string) error {
	// Cinder exposes migration only as the os-migrate_volume action.
	body := map[string]any{
		"os-migrate_volume": map[string]any{"host": destinationPool},
	}
	_, err := c.volume.Post(ctx, c.volume.ServiceURL("volumes", id, "action"), body, nil,
		&gophercloud.RequestOpts{OkCodes: []int{http.StatusAccepted}})
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &VolumeNotFoundError{ID: id}
	}
	return classify(err)
}

func (c *OpenStack) RetypeVolume(ctx context.Context, id, newType string) error {
	opts := volumes.ChangeTypeOpts{
		NewType:         newType,
		MigrationPolicy: volumes.MigrationPolicyOnDemand,
	}
	err := volumes.ChangeType(ctx, c.volume, id, opts).ExtractErr()
	if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
		return &VolumeNotFoundError{ID: id}
	}
	return classify(err)
}

func (c *OpenStack) WaitForVolumeStatus(ctx context.Context, id, target string, retries int, interval time.Duration) error {
	var lastStatus string
	for attempt := 0; attempt <= retries; attempt++ {
		vol, err := c.GetVolume(ctx, id)
		if err != nil {
			return err
		}
		if vol.Status == target {
			return nil
		}
		lastStatus = vol.Status
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return &TransientError{Err: &stateMismatchError{id: id, want: target, got: lastStatus}}
}
