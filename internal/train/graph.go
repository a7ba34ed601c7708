package train

import (
	"fmt"

	"github.com/samcharles93/charrnn/internal/dataset"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/samcharles93/charrnn/internal/tensor"
	G "gorgonia.org/gorgonia"
	gtensor "gorgonia.org/tensor"
)

// graph is the network unrolled over a fixed number of timesteps for a fixed
// batch size, with one-hot inputs and targets fed per batch.
type graph struct {
	g          *G.ExprGraph
	vm         G.VM
	solver     G.Solver
	learnables G.Nodes
	names      []string

	inputs  []*G.Node // per timestep, [B x V]
	targets []*G.Node // per timestep, [B x V]
	cost    *G.Node

	batch, steps, vocab int
	costVal             G.Value
}

type gruNodes struct {
	emb              *G.Node
	wz, wr, wn       *G.Node
	uz, ur, un       *G.Node
	bz, br, bn, bun  *G.Node
	dense, denseBias *G.Node
}

func newGraph(params *model.Params, batch, steps int, learningRate float64) (*graph, error) {
	cfg := params.Config
	gr := &graph{
		g:     G.NewGraph(),
		batch: batch,
		steps: steps,
		vocab: cfg.VocabSize,
	}

	nodes := make(map[string]*G.Node)
	err := params.Each(func(name string, m *tensor.Mat) error {
		backing := append([]float32(nil), m.Data...)
		n := G.NewMatrix(gr.g, gtensor.Float32,
			G.WithShape(m.R, m.C),
			G.WithName(name),
			G.WithValue(gtensor.New(gtensor.WithShape(m.R, m.C), gtensor.WithBacking(backing))),
		)
		nodes[name] = n
		gr.learnables = append(gr.learnables, n)
		gr.names = append(gr.names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p := gruNodes{
		emb: nodes["embedding"],
		wz:  nodes["gru.wz"], wr: nodes["gru.wr"], wn: nodes["gru.wn"],
		uz: nodes["gru.uz"], ur: nodes["gru.ur"], un: nodes["gru.un"],
		bz: nodes["gru.bz"], br: nodes["gru.br"], bn: nodes["gru.bn"], bun: nodes["gru.bun"],
		dense:     nodes["dense.kernel"],
		denseBias: nodes["dense.bias"],
	}

	h := G.NewMatrix(gr.g, gtensor.Float32,
		G.WithShape(batch, cfg.RNNUnits),
		G.WithName("h0"),
		G.WithValue(gtensor.New(gtensor.WithShape(batch, cfg.RNNUnits), gtensor.Of(gtensor.Float32))),
	)

	var losses G.Nodes
	for t := range steps {
		x := G.NewMatrix(gr.g, gtensor.Float32, G.WithShape(batch, cfg.VocabSize), G.WithName(fmt.Sprintf("x%d", t)))
		y := G.NewMatrix(gr.g, gtensor.Float32, G.WithShape(batch, cfg.VocabSize), G.WithName(fmt.Sprintf("y%d", t)))
		gr.inputs = append(gr.inputs, x)
		gr.targets = append(gr.targets, y)

		emb, err := G.Mul(x, p.emb)
		if err != nil {
			return nil, fmt.Errorf("embedding lookup: %w", err)
		}
		if h, err = gruCell(p, emb, h); err != nil {
			return nil, fmt.Errorf("gru step %d: %w", t, err)
		}
		logits, err := affine(h, p.dense, p.denseBias)
		if err != nil {
			return nil, fmt.Errorf("dense step %d: %w", t, err)
		}
		ce, err := crossEntropy(logits, y)
		if err != nil {
			return nil, fmt.Errorf("loss step %d: %w", t, err)
		}
		losses = append(losses, ce)
	}

	total, err := G.ReduceAdd(losses)
	if err != nil {
		return nil, fmt.Errorf("sum losses: %w", err)
	}
	scale := G.NewConstant(float32(-1.0 / float64(batch*steps)))
	if gr.cost, err = G.Mul(total, scale); err != nil {
		return nil, fmt.Errorf("scale loss: %w", err)
	}
	G.Read(gr.cost, &gr.costVal)

	if _, err := G.Grad(gr.cost, gr.learnables...); err != nil {
		return nil, fmt.Errorf("build gradients: %w", err)
	}
	gr.vm = G.NewTapeMachine(gr.g, G.BindDualValues(gr.learnables...))
	gr.solver = G.NewAdamSolver(G.WithLearnRate(learningRate))
	return gr, nil
}

// affine computes x*w + b with b broadcast over the batch rows.
func affine(x, w, b *G.Node) (*G.Node, error) {
	xw, err := G.Mul(x, w)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(xw, b, nil, []byte{0})
}

// gruCell returns the next hidden state for input x and state h:
//
//	z  = σ(xWz + hUz + bz)
//	r  = σ(xWr + hUr + br)
//	n  = tanh(xWn + bn + r ⊙ (hUn + bun))
//	h' = n + z ⊙ (h - n)
func gruCell(p gruNodes, x, h *G.Node) (*G.Node, error) {
	gate := func(w, u, b *G.Node) (*G.Node, error) {
		xw, err := affine(x, w, b)
		if err != nil {
			return nil, err
		}
		hu, err := G.Mul(h, u)
		if err != nil {
			return nil, err
		}
		sum, err := G.Add(xw, hu)
		if err != nil {
			return nil, err
		}
		return G.Sigmoid(sum)
	}
	z, err := gate(p.wz, p.uz, p.bz)
	if err != nil {
		return nil, err
	}
	r, err := gate(p.wr, p.ur, p.br)
	if err != nil {
		return nil, err
	}

	xn, err := affine(x, p.wn, p.bn)
	if err != nil {
		return nil, err
	}
	hn, err := affine(h, p.un, p.bun)
	if err != nil {
		return nil, err
	}
	rhn, err := G.HadamardProd(r, hn)
	if err != nil {
		return nil, err
	}
	pre, err := G.Add(xn, rhn)
	if err != nil {
		return nil, err
	}
	n, err := G.Tanh(pre)
	if err != nil {
		return nil, err
	}

	diff, err := G.Sub(h, n)
	if err != nil {
		return nil, err
	}
	zd, err := G.HadamardProd(z, diff)
	if err != nil {
		return nil, err
	}
	return G.Add(n, zd)
}

// crossEntropy returns sum(y ⊙ log softmax(logits)) over the batch. The
// caller negates and averages.
func crossEntropy(logits, y *G.Node) (*G.Node, error) {
	prob, err := G.SoftMax(logits)
	if err != nil {
		return nil, err
	}
	logp, err := G.Log(prob)
	if err != nil {
		return nil, err
	}
	picked, err := G.HadamardProd(y, logp)
	if err != nil {
		return nil, err
	}
	return G.Sum(picked)
}

// step feeds one batch, runs forward and backward passes and applies one
// Adam update. It returns the mean loss of the batch.
func (gr *graph) step(b dataset.Batch) (float64, error) {
	if b.Size() != gr.batch {
		return 0, fmt.Errorf("batch size %d, graph built for %d", b.Size(), gr.batch)
	}
	for t := range gr.steps {
		if err := G.Let(gr.inputs[t], gr.oneHot(b.Inputs, t)); err != nil {
			return 0, fmt.Errorf("set input %d: %w", t, err)
		}
		if err := G.Let(gr.targets[t], gr.oneHot(b.Targets, t)); err != nil {
			return 0, fmt.Errorf("set target %d: %w", t, err)
		}
	}
	defer gr.vm.Reset()
	if err := gr.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("run graph: %w", err)
	}
	if err := gr.solver.Step(G.NodesToValueGrads(gr.learnables)); err != nil {
		return 0, fmt.Errorf("adam step: %w", err)
	}
	loss, ok := gr.costVal.Data().(float32)
	if !ok {
		return 0, fmt.Errorf("unexpected loss type %T", gr.costVal.Data())
	}
	return float64(loss), nil
}

func (gr *graph) oneHot(rows [][]int, t int) *gtensor.Dense {
	backing := make([]float32, gr.batch*gr.vocab)
	for b, row := range rows {
		backing[b*gr.vocab+row[t]] = 1
	}
	return gtensor.New(gtensor.WithShape(gr.batch, gr.vocab), gtensor.WithBacking(backing))
}

// syncParams copies the learned values back into params.
func (gr *graph) syncParams(params *model.Params) error {
	for i, n := range gr.learnables {
		m, ok := params.Tensor(gr.names[i])
		if !ok {
			return fmt.Errorf("unknown parameter %s", gr.names[i])
		}
		data, ok := n.Value().Data().([]float32)
		if !ok || len(data) != len(m.Data) {
			return fmt.Errorf("parameter %s: unexpected value", gr.names[i])
		}
		copy(m.Data, data)
	}
	return nil
}

func (gr *graph) close() {
	if gr.vm != nil {
		_ = gr.vm.Close()
	}
}
