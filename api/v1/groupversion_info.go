// Package v1 contains the declarative CompositeTask manifest.
package v1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	// GroupVersion is the group version used by CompositeTask manifests
	GroupVersion = schema.GroupVersion{Group: "stagehand.kination.io", Version: "v1"}

	// Kind is the only manifest kind understood by the loader
	Kind = "CompositeTask"
)
