package common

// DrawGroup classifies a renderable instance by the shading pipeline that draws it.
// The culling pass compacts each group into its own indirect command region.
type DrawGroup uint32

const (
	DrawGroupUnlit DrawGroup = iota
	DrawGroupBRDF
	DrawGroupReflective
	DrawGroupRefractive
	DrawGroupTransparent
	DrawGroupTerrain
	DrawGroupTransparentLines
	DrawGroupOpaqueLines

	// DrawGroupCount is the number of defined draw groups.
	DrawGroupCount = iota
)

// DrawGroupUnknown marks an instance that belongs to no group and is never drawn.
const DrawGroupUnknown DrawGroup = DrawGroup(NullIndex)

var drawGroupNames = [DrawGroupCount]string{
	"unlit",
	"brdf",
	"reflective",
	"refractive",
	"transparent",
	"terrain",
	"transparent_lines",
	"opaque_lines",
}

func (g DrawGroup) String() string {
	if g < DrawGroupCount {
		return drawGroupNames[g]
	}
	return "unknown"
}

// Valid reports whether g is one of the defined draw groups.
func (g DrawGroup) Valid() bool {
	return g < DrawGroupCount
}

// Blended reports whether the group is alpha blended and drawn after the opaque groups.
func (g DrawGroup) Blended() bool {
	return g == DrawGroupTransparent || g == DrawGroupTransparentLines
}

// ParseDrawGroup resolves a draw group from its lower-case name as used in configuration files.
//
// Parameters:
//   - name: the group name, e.g. "brdf" or "transparent_lines"
//
// Returns:
//   - DrawGroup: the matching group, or DrawGroupUnknown
//   - bool: false if the name does not match any group
func ParseDrawGroup(name string) (DrawGroup, bool) {
	for i, n := range drawGroupNames {
		if n == name {
			return DrawGroup(i), true
		}
	}
	return DrawGroupUnknown, false
}
