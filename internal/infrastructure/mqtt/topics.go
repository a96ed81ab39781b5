package mqtt

import "fmt"

// TopicPrefixNode is the base for all node topics.
const TopicPrefixNode = "billbot/node"

// Topics provides builders for node MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.NodeStatus("linux-lab-amd64-1a2b3c4d")
//	// Returns: "billbot/node/linux-lab-amd64-1a2b3c4d/status"
type Topics struct{}

// NodeStatus returns the retained connection status topic. It is also the
// LWT topic.
func (Topics) NodeStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixNode, deviceID)
}

// NodeCapabilities returns the retained capability descriptor topic.
func (Topics) NodeCapabilities(deviceID string) string {
	return fmt.Sprintf("%s/%s/capabilities", TopicPrefixNode, deviceID)
}

// NodeCommand returns the topic for executed command events.
func (Topics) NodeCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixNode, deviceID)
}

// NodeControl returns the topic the node listens on for control requests.
func (Topics) NodeControl(deviceID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixNode, deviceID)
}

// AllNodeStatus returns a wildcard pattern for the status of every node.
func (Topics) AllNodeStatus() string {
	return TopicPrefixNode + "/+/status"
}
