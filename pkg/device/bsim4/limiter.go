package bsim4

import "github.com/edp1096/toy-bsim4/pkg/device"

// bias is the set of normalized branch voltages the limiter works on. All
// of them are referred to the source prime node.
type bias struct {
	vgs, vds, vbs float64
	vges, vgms    float64
	vdbs, vsbs    float64
	vdes, vses    float64
}

func biasOf(vn *[numNodes]float64) bias {
	sp := vn[nodeSP]
	return bias{
		vgs:  vn[nodeGP] - sp,
		vds:  vn[nodeDP] - sp,
		vbs:  vn[nodeBP] - sp,
		vges: vn[nodeG] - sp,
		vgms: vn[nodeGM] - sp,
		vdbs: vn[nodeDB] - sp,
		vsbs: vn[nodeSB] - sp,
		vdes: vn[nodeD] - sp,
		vses: vn[nodeS] - sp,
	}
}

// limitBias returns the iterate the device is evaluated at. It is x itself
// unless the junction initial guess or the step limiter applies.
func (i *Instance) limitBias(x *[numNodes]float64, status *device.CircuitStatus) [numNodes]float64 {
	typ := float64(i.model.Type)
	var vn [numNodes]float64
	for n := range x {
		vn[n] = typ * x[n]
	}

	i.limited = false
	b := biasOf(&vn)
	switch {
	case status.NewtonIter == 0 && status.InitJunction:
		b = i.initialBias()
		i.limited = true
	case status.VoltageLimiting && status.NewtonIter > 0:
		orig := b
		i.limitStep(&b)
		i.limited = b != orig
	default:
		return *x
	}
	if !i.limited {
		return *x
	}

	i.rebuild(&vn, b)
	var out [numNodes]float64
	for n := range vn {
		out[n] = typ * vn[n]
	}
	return out
}

func (i *Instance) initialBias() bias {
	vgs := float64(i.model.Type)*i.temp.vth0 + 0.1
	b := bias{vgs: vgs, vges: vgs, vgms: vgs, vds: 0.1}
	if i.model.RDSMOD == 1 {
		b.vdes = 0.11
		b.vses = -0.01
	} else {
		b.vdes = b.vds
	}
	return b
}

// limitStep applies fetlim, limvds and pnjlim to b against the voltages
// of the previous evaluation.
func (i *Instance) limitStep(b *bias) {
	old := i.old
	von := i.von
	gate := i.topo.NodeSet.Gate
	rds := i.model.RDSMOD == 1

	if old.vds >= 0 {
		vgd := b.vgs - b.vds
		b.vgs = device.Fetlim(b.vgs, old.vgs, von)
		b.vds = device.Limvds(b.vgs-vgd, old.vds)
		if gate != GateNone {
			b.vges = device.Fetlim(b.vges, old.vges, von)
		}
		if gate == GateTwoResistor {
			b.vgms = device.Fetlim(b.vgms, old.vgms, von)
		}
	} else {
		vgd := b.vgs - b.vds
		vged := b.vges - b.vds
		vgmd := b.vgms - b.vds
		vgd = device.Fetlim(vgd, old.vgs-old.vds, von)
		vds := b.vgs - vgd
		b.vds = -device.Limvds(-vds, -old.vds)
		b.vgs = vgd + b.vds
		if gate != GateNone {
			vged = device.Fetlim(vged, old.vges-old.vds, von)
			b.vges = vged + b.vds
		}
		if gate == GateTwoResistor {
			vgmd = device.Fetlim(vgmd, old.vgms-old.vds, von)
			b.vgms = vgmd + b.vds
		}
	}
	if rds {
		b.vdes = device.Limvds(b.vdes, old.vdes)
		b.vses = -device.Limvds(-b.vses, -old.vses)
	}

	src, drn := &i.temp.source, &i.temp.drain
	split := i.bodySplit()
	if b.vds >= 0 {
		b.vbs, _ = device.Pnjlim(b.vbs, old.vbs, src.nvtm, src.vcrit)
		if split {
			b.vdbs, _ = device.Pnjlim(b.vdbs, old.vdbs, drn.nvtm, drn.vcrit)
			b.vsbs, _ = device.Pnjlim(b.vsbs, old.vsbs, src.nvtm, src.vcrit)
		}
	} else {
		vbd, _ := device.Pnjlim(b.vbs-b.vds, old.vbs-old.vds, drn.nvtm, drn.vcrit)
		b.vbs = vbd + b.vds
		if split {
			vdbd, _ := device.Pnjlim(b.vdbs-b.vds, old.vdbs-old.vds, drn.nvtm, drn.vcrit)
			b.vdbs = vdbd + b.vds
			b.vsbs, _ = device.Pnjlim(b.vsbs, old.vsbs, src.nvtm, src.vcrit)
		}
	}
}

// bodySplit reports whether the junction body nodes are rows of their own.
func (i *Instance) bodySplit() bool {
	t := i.topo
	return t.Row(nodeDB) != t.Row(nodeBP) && t.Row(nodeSB) != t.Row(nodeBP)
}

// rebuild writes the limited voltages back into vn, keeping the source
// prime node fixed. Nodes sharing a physical row end up equal; rows that
// are not distinct unknowns are never written twice.
func (i *Instance) rebuild(vn *[numNodes]float64, b bias) {
	t := i.topo
	var rows [numNodes]float64
	for n := node(0); n < numNodes; n++ {
		if t.Present(n) {
			rows[t.Row(n)] = vn[n]
		}
	}
	ref := vn[nodeSP]
	set := func(n node, v float64) { rows[t.Row(n)] = ref + v }

	set(nodeDP, b.vds)
	set(nodeGP, b.vgs)
	set(nodeBP, b.vbs)
	if i.bodySplit() {
		set(nodeDB, b.vdbs)
		set(nodeSB, b.vsbs)
	}
	if t.Row(nodeG) != t.Row(nodeGP) {
		set(nodeG, b.vges)
	}
	if t.NodeSet.Gate == GateTwoResistor {
		set(nodeGM, b.vgms)
	}
	if i.model.RDSMOD == 1 {
		if t.Row(nodeD) != t.Row(nodeDP) {
			set(nodeD, b.vdes)
		}
		if t.Row(nodeS) != t.Row(nodeSP) {
			set(nodeS, b.vses)
		}
	}

	for n := node(0); n < numNodes; n++ {
		if t.Present(n) {
			vn[n] = rows[t.Row(n)]
		}
	}
}
