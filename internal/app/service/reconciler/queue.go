package reconciler

import (
	"context"

	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

const (
	queueTreePath = "/queue/tree"
	manglePath    = "/ip/firewall/mangle"
)

// applyQueue creates or updates the customer's download/upload queue-tree
// pair. Queues shape only marked traffic; missing mangle marks degrade to
// no-op shaping rather than an error, so their absence is just a warning.
func (s *Service) applyQueue(ctx context.Context, conn router.Conn, q types.QueueSpec) types.EnforceResult {
	log := logctx.FromCtx(ctx, s.log)

	s.checkPacketMarks(ctx, conn, q)

	nodes := []struct {
		name   string
		parent string
		mark   string
		limit  string
	}{
		{q.DownloadQueueName(), q.ParentDownload, q.DownloadPacketMark(), mbps(q.DownloadMbps)},
		{q.UploadQueueName(), q.ParentUpload, q.UploadPacketMark(), mbps(q.UploadMbps)},
	}
	for _, n := range nodes {
		existing, err := conn.Run(ctx, queueTreePath+"/print", "?name="+n.name)
		if err != nil {
			s.metrics.DeviceErrors.WithLabelValues("queue_print").Inc()
			return types.Failed("read queue %s: %v", n.name, err)
		}
		if len(existing) > 0 {
			_, err = conn.Run(ctx, queueTreePath+"/set",
				"=.id="+existing[0][".id"],
				"=max-limit="+n.limit,
				"=parent="+n.parent,
			)
			if err != nil {
				s.metrics.DeviceErrors.WithLabelValues("queue_set").Inc()
				return types.Failed("update queue %s: %v", n.name, err)
			}
			continue
		}
		_, err = conn.Run(ctx, queueTreePath+"/add",
			"=name="+n.name,
			"=parent="+n.parent,
			"=packet-mark="+n.mark,
			"=max-limit="+n.limit,
			"=comment=prepaid-system",
		)
		if err != nil {
			s.metrics.DeviceErrors.WithLabelValues("queue_add").Inc()
			return types.Failed("create queue %s: %v", n.name, err)
		}
	}
	log.Infow("queues applied",
		"customer", q.CustomerName, "ip", q.IP,
		"download", mbps(q.DownloadMbps), "upload", mbps(q.UploadMbps))
	return types.Ok("queues %s/%s set to %s/%s",
		q.DownloadQueueName(), q.UploadQueueName(), mbps(q.DownloadMbps), mbps(q.UploadMbps))
}

// checkPacketMarks warns when the marking rules the queues depend on are
// missing. Queues without marks shape nothing; they do not error.
func (s *Service) checkPacketMarks(ctx context.Context, conn router.Conn, q types.QueueSpec) {
	log := logctx.FromCtx(ctx, s.log)
	for _, probe := range []struct{ key, value, mark string }{
		{"dst-address", q.IP, q.DownloadPacketMark()},
		{"src-address", q.IP, q.UploadPacketMark()},
	} {
		rows, err := conn.Run(ctx, manglePath+"/print", "?"+probe.key+"="+probe.value)
		if err != nil {
			log.Warnw("mangle check failed", "ip", q.IP, "err", err)
			return
		}
		found := false
		for _, r := range rows {
			if r["new-packet-mark"] == probe.mark {
				found = true
				break
			}
		}
		if !found {
			log.Warnw("no mangle rule marks traffic for queue; shaping will be inert until marks exist",
				"ip", q.IP, "expected_mark", probe.mark)
		}
	}
}

// removeQueue deletes both queue nodes for the customer, if present.
func (s *Service) removeQueue(ctx context.Context, conn router.Conn, customerName string) types.EnforceResult {
	q := types.QueueSpec{CustomerName: customerName}
	removed := 0
	for _, name := range []string{q.DownloadQueueName(), q.UploadQueueName()} {
		existing, err := conn.Run(ctx, queueTreePath+"/print", "?name="+name)
		if err != nil {
			s.metrics.DeviceErrors.WithLabelValues("queue_print").Inc()
			return types.Failed("read queue %s: %v", name, err)
		}
		for _, node := range existing {
			if _, err := conn.Run(ctx, queueTreePath+"/remove", "=.id="+node[".id"]); err != nil {
				s.metrics.DeviceErrors.WithLabelValues("queue_remove").Inc()
				return types.Failed("remove queue %s: %v", name, err)
			}
			removed++
		}
	}
	return types.Ok("%d queue node(s) removed for %s", removed, customerName)
}
