package client

// Service is one entry of GET /services.
type Service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Unit        string `json:"unit,omitempty"`
	Port        int    `json:"port,omitempty"`
	Status      string `json:"status"`
	PID         int    `json:"pid,omitempty"`
	MemoryMB    *int   `json:"memory_mb,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Self        bool   `json:"self,omitempty"`
}

// ActionResult is the body of POST /services/:name/:action.
type ActionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	// StatusCode is the HTTP status the server answered with.
	StatusCode int `json:"-"`
}

// HostSummary is the body of GET /host.
type HostSummary struct {
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	MemoryAvailableMB uint64  `json:"memory_available_mb"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskPath          string  `json:"disk_path"`
	DiskTotalGB       float64 `json:"disk_total_gb"`
	DiskUsedGB        float64 `json:"disk_used_gb"`
	DiskFreeGB        float64 `json:"disk_free_gb"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

type errorBody struct {
	Error string `json:"error"`
}
