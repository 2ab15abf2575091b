package model

// Vassalship links a vassal town to its master.
type Vassalship struct {
	Vassal string
	Master string
}
