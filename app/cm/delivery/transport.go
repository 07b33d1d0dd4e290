package delivery

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/gorilla/mux"
	metrics "github.com/rcrowley/go-metrics"
)

// adminSender is the sender of the fops built from the admin api.
const adminSender = "admin"

// triggerBody is the json body of the trigger api.
type triggerBody struct {
	FaultSet    []uint64 `json:"fault_set"`
	PoolVersion uint64   `json:"pool_version"`
	Node        string   `json:"node"`
}

type adminAPI struct {
	cmh     *cmHandlers
	metrics metrics.Registry
	xid     uint64
}

func makeHandler(a *adminAPI) http.Handler {
	r := mux.NewRouter()

	// Copy machine routers.
	r.Methods("GET").Path("/cm").HandlerFunc(a.listMachineHandler)
	r.Methods("GET").Path("/cm/jobs").HandlerFunc(a.listJobHandler)

	tr := r.PathPrefix("/cm/{type}").Subrouter()
	tr.Methods("GET").Path("/status").HandlerFunc(a.statusHandler)
	tr.Methods("POST").Path("/trigger").HandlerFunc(a.triggerHandler)
	tr.Methods("POST").Path("/quiesce").HandlerFunc(a.controlHandler(fop.Quiesce))
	tr.Methods("POST").Path("/abort").HandlerFunc(a.controlHandler(fop.Abort))

	r.Methods("GET").Path("/metrics").HandlerFunc(a.metricsHandler)

	return r
}

// httpTypeBytes returns rpc type bytes which is used to multiplexing.
func httpTypeBytes() []byte {
	return []byte{
		0x44, // 'D' of DELETE
		0x47, // 'G' of GET
		0x48, // 'H' of HEAD
		0x50, // 'P' of POST, PUT
	}
}

// rpcTypeBytes returns rpc type bytes which is used to multiplexing.
func rpcTypeBytes() []byte {
	return []byte{
		byte(nilrpc.RPCNil),
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// httpStatus returns the http status of the reply result code.
func httpStatus(rc nilrpc.Rc) int {
	switch rc {
	case nilrpc.RcOK:
		return http.StatusOK
	case nilrpc.RcUnknownInstance, nilrpc.RcUnknownOpcode:
		return http.StatusNotFound
	case nilrpc.RcMalformedPayload:
		return http.StatusBadRequest
	case nilrpc.RcAlreadyRunning, nilrpc.RcNotRunning, nilrpc.RcAborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// submit builds the fop of the kind, submits it and decodes the reply.
// It returns the http status of a failed submission.
func (a *adminAPI) submit(typ string, k fop.Kind, body, reply interface{}) (int, error) {
	f, err := nilrpc.NewCmFop(typ, k, atomic.AddUint64(&a.xid, 1), adminSender, body)
	if err != nil {
		return http.StatusNotFound, err
	}

	rep := &fop.Fop{}
	if err := a.cmh.Submit(f, rep); err != nil {
		return http.StatusGatewayTimeout, err
	}
	if err := nilrpc.DecodeCmReply(typ, k, rep, reply); err != nil {
		return http.StatusNotFound, err
	}
	return 0, nil
}

func (a *adminAPI) listMachineHandler(w http.ResponseWriter, r *http.Request) {
	res := &nilrpc.CmListMachineResponse{}
	a.cmh.ListMachine(&nilrpc.CmListMachineRequest{}, res)
	writeJSON(w, http.StatusOK, res)
}

func (a *adminAPI) listJobHandler(w http.ResponseWriter, r *http.Request) {
	res := &nilrpc.CmListJobResponse{}
	if err := a.cmh.ListJob(&nilrpc.CmListJobRequest{Type: r.URL.Query().Get("type")}, res); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *adminAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]

	rep := &nilrpc.CmStatusReply{}
	if code, err := a.submit(typ, fop.Status, nil, rep); err != nil {
		writeError(w, code, err)
		return
	}
	writeJSON(w, httpStatus(rep.Rc), rep)
}

func (a *adminAPI) triggerHandler(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]

	tb := &triggerBody{}
	if err := json.NewDecoder(r.Body).Decode(tb); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := &nilrpc.CmTriggerRequest{
		Type:        typ,
		FaultSet:    tb.FaultSet,
		PoolVersion: tb.PoolVersion,
		Node:        tb.Node,
	}
	rep := &nilrpc.CmTriggerReply{}
	if code, err := a.submit(typ, fop.Trigger, req, rep); err != nil {
		writeError(w, code, err)
		return
	}
	writeJSON(w, httpStatus(rep.Rc), rep)
}

func (a *adminAPI) controlHandler(k fop.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := mux.Vars(r)["type"]

		rep := &nilrpc.CmTriggerReply{}
		if code, err := a.submit(typ, k, nil, rep); err != nil {
			writeError(w, code, err)
			return
		}
		writeJSON(w, httpStatus(rep.Rc), rep)
	}
}

func (a *adminAPI) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(a.metrics, w)
}
