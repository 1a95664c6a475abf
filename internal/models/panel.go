package models

// PanelUserStatus is the status of a user on the Marzban panel
type PanelUserStatus string

const (
	PanelUserActive   PanelUserStatus = "active"
	PanelUserExpired  PanelUserStatus = "expired"
	PanelUserLimited  PanelUserStatus = "limited"
	PanelUserDisabled PanelUserStatus = "disabled"
	PanelUserOnHold   PanelUserStatus = "on_hold"
)

// PanelUser represents a proxy account as returned by the Marzban API
type PanelUser struct {
	Username               string                            `json:"username"`
	Status                 PanelUserStatus                   `json:"status"`
	DataLimit              *int64                            `json:"data_limit"`
	DataLimitResetStrategy string                            `json:"data_limit_reset_strategy"`
	UsedTraffic            int64                             `json:"used_traffic"`
	LifetimeUsedTraffic    int64                             `json:"lifetime_used_traffic"`
	Expire                 *int64                            `json:"expire"`
	Proxies                map[string]map[string]interface{} `json:"proxies"`
	Inbounds               map[string][]string               `json:"inbounds"`
	Links                  []string                          `json:"links"`
	SubscriptionURL        string                            `json:"subscription_url"`
	Note                   string                            `json:"note"`
	SubLastUserAgent       *string                           `json:"sub_last_user_agent"`
	OnlineAt               *string                           `json:"online_at"`
	CreatedAt              string                            `json:"created_at"`
}

// UsersPage is the response of the user listing endpoint
type UsersPage struct {
	Users []PanelUser `json:"users"`
	Total int         `json:"total"`
}

// SystemStats represents the panel host statistics
type SystemStats struct {
	Version                string  `json:"version"`
	MemTotal               int64   `json:"mem_total"`
	MemUsed                int64   `json:"mem_used"`
	CPUCores               int     `json:"cpu_cores"`
	CPUUsage               float64 `json:"cpu_usage"`
	TotalUser              int     `json:"total_user"`
	UsersActive            int     `json:"users_active"`
	IncomingBandwidth      int64   `json:"incoming_bandwidth"`
	OutgoingBandwidth      int64   `json:"outgoing_bandwidth"`
	IncomingBandwidthSpeed int64   `json:"incoming_bandwidth_speed"`
	OutgoingBandwidthSpeed int64   `json:"outgoing_bandwidth_speed"`
}

// NodeUsage is the traffic of a user on a single node
type NodeUsage struct {
	NodeID      *int   `json:"node_id"`
	NodeName    string `json:"node_name"`
	UsedTraffic int64  `json:"used_traffic"`
}

// UserUsage is the per-node traffic breakdown of a user
type UserUsage struct {
	Username string      `json:"username"`
	Usages   []NodeUsage `json:"usages"`
}

// Node represents a Marzban node
type Node struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Port             int     `json:"port"`
	APIPort          int     `json:"api_port"`
	UsageCoefficient float64 `json:"usage_coefficient"`
	XrayVersion      *string `json:"xray_version"`
	Status           string  `json:"status"`
	Message          *string `json:"message"`
}
