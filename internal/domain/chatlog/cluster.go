package chatlog

// Cluster is one labeled group of a user's conversations. Indices point into
// the document slice that was clustered.
type Cluster struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	Indices       []int    `json:"indices"`
	Conversations []string `json:"conversations"`
}

// UserClusters holds the clusters of one user keyed by cluster id.
type UserClusters struct {
	UserID   string          `json:"user_id"`
	Clusters map[int]Cluster `json:"clusters"`
}

// Assignment maps one document back onto its cluster.
type Assignment struct {
	ClusterID    int    `json:"cluster"`
	ClusterTitle string `json:"cluster_title"`
}
