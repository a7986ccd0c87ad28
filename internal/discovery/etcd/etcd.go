package etcd

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
)

// Registry announces this service to etcd and resolves peers.
type Registry struct {
	cli *clientv3.Client // etcd client
}

// NewRegistry creates a Registry from the etcd configuration.
func NewRegistry(cfg *config.EtcdConfig) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{cli: cli}, nil
}

// Register announces the service under /<serviceName>/<addr> with a
// keep-alive lease. Closing the returned channel stops the heartbeat.
func (r *Registry) Register(serviceName, addr string, ttl int64) (chan<- struct{}, error) {
	leaseResp, err := r.cli.Grant(context.Background(), ttl)
	if err != nil {
		return nil, err
	}

	_, err = r.cli.Put(context.Background(), "/"+serviceName+"/"+addr, addr, clientv3.WithLease(leaseResp.ID))
	if err != nil {
		return nil, err
	}

	keepAliveCh, err := r.cli.KeepAlive(context.Background(), leaseResp.ID)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				r.revoke(serviceName, addr)
				return
			case _, ok := <-keepAliveCh:
				if !ok {
					// Lease expired or was revoked.
					r.revoke(serviceName, addr)
					return
				}
			}
		}
	}()

	return stop, nil
}

// revoke removes the service key from etcd.
func (r *Registry) revoke(serviceName, addr string) {
	// The lease will be automatically revoked by etcd, but we can also manually delete the key.
	r.cli.Delete(context.Background(), "/"+serviceName+"/"+addr)
}

// Discover returns the registered addresses of a service.
func (r *Registry) Discover(serviceName string) ([]string, error) {
	resp, err := r.cli.Get(context.Background(), "/"+serviceName, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, ev := range resp.Kvs {
		addrs = append(addrs, string(ev.Value))
	}

	return addrs, nil
}

// Close closes the etcd client.
func (r *Registry) Close() error {
	return r.cli.Close()
}
