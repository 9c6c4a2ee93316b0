// Package opcsig ingests ground-truth signals from an OPC UA server, for
// test rigs whose trigger hardware hangs off a PLC. Each monitored node's
// data change becomes one SignalEvent.
package opcsig

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

type Config struct {
	SourceID        string        `yaml:"source_id"`
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	Nodes           []string      `yaml:"nodes"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 100 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	return nil
}

type Adapter struct {
	cfg Config

	mu        sync.Mutex
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]string
	started   bool
	seq       uint64
	lastTS    float64
}

func NewAdapter(cfg Config) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg}, nil
}

func (a *Adapter) SourceID() string          { return a.cfg.SourceID }
func (a *Adapter) Protocol() domain.Protocol { return domain.ProtocolOPCUA }

// RawNow approximates the server's stamping clock with the local wall
// clock; the drift correction absorbs the residual skew over a run.
func (a *Adapter) RawNow() (float64, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

func (a *Adapter) Start(out chan<- *domain.SignalEvent) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("opcua %s: already started", a.cfg.SourceID)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	client, err := opcua.NewClient(a.cfg.Endpoint, a.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua %s: new client: %w", a.cfg.SourceID, err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua %s: connect: %w", a.cfg.SourceID, err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(a.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: a.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua %s: subscribe: %w", a.cfg.SourceID, err)
	}

	handleMap := make(map[uint32]string, len(a.cfg.Nodes))
	for i, node := range a.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node)
		if err != nil {
			a.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("opcua %s: parse node id %q: %w", a.cfg.SourceID, node, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			a.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("opcua %s: monitor node %q: %w", a.cfg.SourceID, node, err)
		}
		if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			a.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("opcua %s: monitor node %q rejected", a.cfg.SourceID, node)
		}
		handleMap[handle] = node
	}

	a.mu.Lock()
	a.client = client
	a.sub = sub
	a.cancel = cancel
	a.handleMap = handleMap
	a.started = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.consume(ctx, notifyCh, out)
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	cancel := a.cancel
	sub := a.sub
	client := a.client
	a.started = false
	a.cancel = nil
	a.sub = nil
	a.client = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	a.wg.Wait()
	return err
}

func (a *Adapter) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.SignalEvent) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				log.Printf("opcua %s: notification error: %v", a.cfg.SourceID, notif.Error)
				continue
			}
			a.processNotification(ctx, notif.Value, out)
		}
	}
}

func (a *Adapter) processNotification(ctx context.Context, val interface{}, out chan<- *domain.SignalEvent) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		nodeID, ok := a.handleMap[item.ClientHandle]
		if !ok {
			continue
		}

		ts := item.Value.ServerTimestamp
		if ts.IsZero() {
			ts = item.Value.SourceTimestamp
		}
		if ts.IsZero() {
			ts = time.Now()
		}
		rawTS := float64(ts.UnixNano()) / 1e9

		a.mu.Lock()
		if rawTS < a.lastTS {
			a.mu.Unlock()
			continue
		}
		a.lastTS = rawTS
		a.seq++
		seq := a.seq
		a.mu.Unlock()

		ev := &domain.SignalEvent{
			SourceID:  a.cfg.SourceID,
			Timestamp: rawTS,
			Raw:       []byte(formatVariant(item.Value.Value)),
			Protocol:  domain.ProtocolOPCUA,
			Metadata:  map[string]string{"node_id": nodeID},
			Seq:       seq,
		}

		select {
		case <-ctx.Done():
			return
		case out <- ev:
		}
	}
}

func (a *Adapter) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(a.cfg.SecurityMode)),
		opcua.SecurityPolicy(a.cfg.SecurityPolicy),
		opcua.ApplicationName("sigproof"),
		opcua.AutoReconnect(true),
	}
	if a.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(a.cfg.Username, a.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (a *Adapter) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func formatVariant(v *ua.Variant) string {
	if v == nil {
		return ""
	}
	switch val := v.Value().(type) {
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return val
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

var (
	_ ports.SignalAdapter = (*Adapter)(nil)
	_ ports.ClockSource   = (*Adapter)(nil)
)
