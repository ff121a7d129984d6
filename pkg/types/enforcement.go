package types

import "fmt"

// Router-resident object names shared between the mapper, reconciler and
// provisioning. Changing these requires re-running the one-click setup.
const (
	AddressListActive    = "prepaid-active"
	AddressListNoPackage = "prepaid-no-package"
	ProfileNoPackage     = "prepaid-no-package"
)

// QueueSpec describes the pair of queue-tree nodes shaping one static-IP
// customer. Names and packet marks follow the postpaid convention so the
// existing mangle rules keep matching.
type QueueSpec struct {
	CustomerName   string
	IP             string
	ParentDownload string
	ParentUpload   string
	DownloadMbps   int
	UploadMbps     int
}

func (q QueueSpec) DownloadQueueName() string { return sanitizeQueueName(q.CustomerName) + "_DOWNLOAD" }
func (q QueueSpec) UploadQueueName() string   { return sanitizeQueueName(q.CustomerName) + "_UPLOAD" }

func (q QueueSpec) DownloadPacketMark() string { return packetMark(q.IP, "download") }
func (q QueueSpec) UploadPacketMark() string   { return packetMark(q.IP, "upload") }

// EnforcementTarget is the desired router state for one customer. It is a
// pure function of connection type, subscription status and package; nothing
// here is persisted.
type EnforcementTarget struct {
	// PPPoE only.
	Profile  string
	Disabled bool

	// Static IP only.
	AddressList string
	Queue       *QueueSpec
}

// EnforceResult reports the outcome of a router-side apply. The billing
// transition is committed before any apply runs, so a failed result means
// "billing succeeded, network degraded", never "billing failed".
type EnforceResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func Ok(format string, args ...any) EnforceResult {
	return EnforceResult{Success: true, Message: fmt.Sprintf(format, args...)}
}

func Failed(format string, args ...any) EnforceResult {
	return EnforceResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

func sanitizeQueueName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' || r == '\t' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func packetMark(ip, direction string) string {
	out := make([]rune, 0, len(ip))
	for _, r := range ip {
		if r == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return "pkt_" + string(out) + "_" + direction
}
