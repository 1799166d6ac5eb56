package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/provision"
	"github.com/subgeo/subgeo/internal/supervisor"
	"github.com/subgeo/subgeo/internal/synth"
)

const (
	defaultGeoTimeout = 15 * time.Second
	portRangeMin      = 20000
	portRangeMax      = 40000
)

// Handle is the live-process surface the prober needs from a running core.
type Handle interface {
	Alive() bool
	Stop()
	StderrTail() string
}

// Runner launches a core binary with a config file and supervises it until
// the settle window has passed.
type Runner interface {
	Start(ctx context.Context, binary, configPath string, args ...string) (Handle, error)
}

// SupervisorRunner adapts a supervisor to the Runner interface.
type SupervisorRunner struct {
	S *supervisor.Supervisor
}

func (r SupervisorRunner) Start(ctx context.Context, binary, configPath string, args ...string) (Handle, error) {
	p, err := r.S.Start(ctx, binary, configPath, args...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Prober takes a single node through the full probe lifecycle: synthesize a
// throwaway config, launch the matching core on a fresh port pair, ask the
// geolocation endpoint through the core's local inbound, then tear everything
// down. Every node yields a classification; probe failures are outcomes, not
// errors.
type Prober struct {
	Runner   Runner
	Provider provision.Provider
	Log      *logrus.Logger

	// GeoURL and GeoTimeout configure the default lookup. Geo overrides the
	// lookup entirely and ignores both.
	GeoURL     string
	GeoTimeout time.Duration
	Geo        GeoFunc

	// ConfigDir receives the per-probe config files; defaults to the
	// system temp directory.
	ConfigDir string

	ports *portAllocator
}

func (p *Prober) logger() *logrus.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logrus.StandardLogger()
}

func (p *Prober) geo() GeoFunc {
	if p.Geo != nil {
		return p.Geo
	}
	endpoint := p.GeoURL
	if endpoint == "" {
		endpoint = DefaultGeoURL
	}
	timeout := p.GeoTimeout
	if timeout <= 0 {
		timeout = defaultGeoTimeout
	}
	return proxiedGeo(endpoint, timeout)
}

func (p *Prober) allocator() *portAllocator {
	if p.ports == nil {
		p.ports = newPortAllocator(portRangeMin, portRangeMax)
	}
	return p.ports
}

func (p *Prober) configDir() string {
	if p.ConfigDir != "" {
		return p.ConfigDir
	}
	return os.TempDir()
}

// Probe classifies one node. The returned outcome always carries the node;
// apply it to rename the node in place.
func (p *Prober) Probe(ctx context.Context, n *model.Node) model.Outcome {
	log := p.logger().WithFields(logrus.Fields{"node": n.Name, "protocol": string(n.Protocol)})

	kind, ok := p.selectCore(n)
	if !ok {
		log.Warn("没有可用核心，跳过测试")
		return model.NewOutcome(n, model.Skipped)
	}

	ports, err := p.allocator().allocatePair()
	if err != nil {
		log.WithError(err).Error("端口分配失败")
		return model.NewOutcome(n, model.InternalError)
	}

	cfg, _, err := synth.Synthesize(n, kind, ports)
	if err != nil {
		log.WithError(err).Warn("节点配置生成失败")
		return model.NewOutcome(n, model.InternalError)
	}

	configPath := filepath.Join(p.configDir(), "probe-"+uuid.NewString()+configExt(kind))
	if err := os.WriteFile(configPath, cfg, 0o600); err != nil {
		log.WithError(err).Error("临时配置写入失败")
		return model.NewOutcome(n, model.InternalError)
	}
	defer func() {
		if err := os.Remove(configPath); err != nil {
			log.WithError(err).Warn("临时配置删除失败")
		}
	}()

	handle, err := p.Runner.Start(ctx, p.Provider.Path(kind), configPath, coreArgs(kind, configPath)...)
	if err != nil {
		if errors.Is(err, supervisor.ErrCoreMissing) {
			log.WithError(err).Warn("核心不可用")
			return model.NewOutcome(n, model.CoreMissing)
		}
		log.WithError(err).Warn("核心启动失败")
		return model.NewOutcome(n, model.CoreCrashed)
	}
	defer handle.Stop()

	if !handle.Alive() {
		log.WithField("stderr", handle.StderrTail()).Warn("核心启动后退出")
		return model.NewOutcome(n, model.CoreCrashed)
	}

	code, err := p.geo()(ctx, kind, ports)
	if err != nil {
		if isTimeout(err) {
			log.WithError(err).Info("测试超时")
			return model.NewOutcome(n, model.Timeout)
		}
		if errors.Is(err, errBadGeoAnswer) {
			log.WithError(err).Warn("地理位置响应无法解析")
			return model.NewOutcome(n, model.InternalError)
		}
		log.WithError(err).Info("测试失败")
		return model.NewOutcome(n, model.NetworkError)
	}

	class := model.Country(code)
	log.WithField("country", class.Label()).Info("测试完成")
	return model.NewOutcome(n, class)
}

// selectCore picks which core probes this node. QUIC-based transports and
// sing-box-origin entries prefer sing-box; otherwise whichever core is
// installed, clash first.
func (p *Prober) selectCore(n *model.Node) (model.CoreKind, bool) {
	clashOK := p.Provider.Ensure(model.CoreClash)
	singOK := p.Provider.Ensure(model.CoreSingBox)

	prefersSingBox := n.Protocol == model.ProtocolHysteria2 ||
		n.Transport.Net == "quic" ||
		n.Origin == model.OriginSingBox

	switch {
	case prefersSingBox && singOK:
		return model.CoreSingBox, true
	case clashOK:
		return model.CoreClash, true
	case singOK:
		return model.CoreSingBox, true
	default:
		return "", false
	}
}

func configExt(kind model.CoreKind) string {
	if kind == model.CoreSingBox {
		return ".json"
	}
	return ".yaml"
}

func coreArgs(kind model.CoreKind, configPath string) []string {
	if kind == model.CoreSingBox {
		return []string{"run", "-c", configPath}
	}
	return []string{"-d", filepath.Dir(configPath), "-f", configPath}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
