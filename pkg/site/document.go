package site

// document is the single JSON document persisted to disk: the entire
// site configuration and checks, in one file (spec §6).
type document struct {
	Timezone string               `json:"timezone,omitempty"`
	Actions  map[string]actionDoc `json:"actions,omitempty"`
	Checks   map[string]checkDoc  `json:"checks,omitempty"`
	Web      *webDoc              `json:"webui,omitempty"`
}

type actionDoc struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

type checkDoc struct {
	Type       string         `json:"type"`
	SubType    string         `json:"subtype,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
	Trigger    string         `json:"trigger,omitempty"`
	Threshold  int            `json:"threshold,omitempty"`
	Retries    int            `json:"retries,omitempty"`
	Priority   int            `json:"priority,omitempty"`
	FailAction bool           `json:"failAction,omitempty"`
	PassAction bool           `json:"passAction,omitempty"`
	Publish    string         `json:"publish,omitempty"` // optional MQTT-style publish topic
	Actions    []string       `json:"actions,omitempty"`
	Depends    []string       `json:"depends,omitempty"`
	Checks     []string       `json:"checks,omitempty"` // ordered sub-check names, sequence only
	Data       *checkDataDoc  `json:"data,omitempty"`
}

// checkDataDoc is the persisted runtime-state block: everything a check
// accumulates between saves, round-tripped so reloading the document
// doesn't reset a check's history (spec §4.7, check.py flatten()/loadCheck()).
type checkDataDoc struct {
	Failing    bool     `json:"failing,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	FailCount  int      `json:"failCount,omitempty"`
	Log        []string `json:"log,omitempty"`
	SoftFail   string   `json:"softFail,omitempty"`
	LastCheck  string   `json:"lastCheck,omitempty"`
	LastUpdate string   `json:"lastUpdate,omitempty"`
	LastFail   string   `json:"lastFail,omitempty"`
	LastPass   string   `json:"lastPass,omitempty"`
}

// webDoc persists the admin web surface's own settings: its port, the
// single admin account (bcrypt hash, per SPEC_FULL §2), and the paths to
// its self-signed certificate and key.
type webDoc struct {
	Port         int    `json:"port"`
	Admin        string `json:"admin"`
	PasswordHash string `json:"passwordHash"`
	CertFile     string `json:"certFile"`
	KeyFile      string `json:"keyFile"`
	JWTSecret    string `json:"jwtSecret"`
}
