package logger

import "os"

const (
	TopologyServerClosed             = "Stopped server monitoring"
	TopologyServerHeartbeatFailed    = "Server heartbeat failed"
	TopologyServerHeartbeatStarted   = "Server heartbeat started"
	TopologyServerHeartbeatSucceeded = "Server heartbeat succeeded"
	TopologyServerOpening            = "Starting server monitoring"
	TopologyServerDescriptionChanged = "Server description changed"
	TopologyHostsChanged             = "Reported hosts changed"
	TopologyOpening                  = "Starting topology monitoring"
	TopologyClosed                   = "Stopped topology monitoring"
	TopologyServerAdded              = "Server added"
	TopologyServerRemoved            = "Server removed"
	ServerSelectionFailed            = "Server selection failed"
	ServerSelectionStarted           = "Server selection started"
	ServerSelectionSucceeded         = "Server selection succeeded"
	ServerSelectionWaiting           = "Waiting for suitable server to become available"
	ConnectionPoolCleared            = "Connection pool cleared"
	ConnectionPoolClosed             = "Connection pool closed"
	ConnectionPoolCreated            = "Connection pool created"
	ConnectionDispatchFailed         = "Dispatch failed"
	ConnectionForceClosed            = "Connection source force closed"
)

const (
	KeyAwaited            = "awaited"
	KeyDurationMS         = "durationMS"
	KeyFailure            = "failure"
	KeyMessage            = "message"
	KeyNewDescription     = "newDescription"
	KeyPreviousDesc       = "previousDescription"
	KeyRemainingTimeMS    = "remainingTimeMS"
	KeySelector           = "selector"
	KeyServerHost         = "serverHost"
	KeyServerPort         = "serverPort"
	KeyTopologyID         = "topologyId"
	KeyAddedHosts         = "addedHosts"
	KeyRemovedHosts       = "removedHosts"
	KeyTopologyDesc       = "topologyDescription"
	KeyMaxPoolSize        = "maxPoolSize"
	KeyDriverConnectionID = "driverConnectionId"
)

// KeyValues is a list of key-value pairs.
type KeyValues []interface{}

// Add adds a key-value pair to an instance of a KeyValues list.
func (kvs *KeyValues) Add(key string, value interface{}) {
	*kvs = append(*kvs, key, value)
}

// Component is an enumeration representing the "components" which can be
// logged against. A LogLevel can be configured on a per-component basis.
type Component int

const (
	// ComponentAll enables logging for all components.
	ComponentAll Component = iota

	// ComponentTopology enables topology logging.
	ComponentTopology

	// ComponentServerSelection enables server selection logging.
	ComponentServerSelection

	// ComponentConnection enables connection services logging.
	ComponentConnection
)

const (
	mongoDBLogAllEnvVar             = "MONGODB_LOG_ALL"
	mongoDBLogTopologyEnvVar        = "MONGODB_LOG_TOPOLOGY"
	mongoDBLogServerSelectionEnvVar = "MONGODB_LOG_SERVER_SELECTION"
	mongoDBLogConnectionEnvVar      = "MONGODB_LOG_CONNECTION"
)

var componentEnvVarMap = map[string]Component{
	mongoDBLogAllEnvVar:             ComponentAll,
	mongoDBLogTopologyEnvVar:        ComponentTopology,
	mongoDBLogServerSelectionEnvVar: ComponentServerSelection,
	mongoDBLogConnectionEnvVar:      ComponentConnection,
}

// EnvHasComponentVariables returns true if the environment contains any of the
// component environment variables.
func EnvHasComponentVariables() bool {
	for envVar := range componentEnvVarMap {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}
