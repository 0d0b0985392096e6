package plugins

import (
	"context"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/trigger"
)

// Metadata keys produced by FilePlugin.Describe.
const (
	MetaContainer  = "container"
	MetaPrefix     = "prefix"
	MetaConnection = "connection"
)

// FilePlugin captures objects dropped into a container and replays them by
// uploading the captured bytes back into that container.
type FilePlugin struct {
	Objects Objects
}

func (p *FilePlugin) Kind() trigger.Kind { return trigger.File }

func (p *FilePlugin) BindingTypes() []string {
	return []string{"blobTrigger", "fileTrigger"}
}

// Describe splits a binding path such as "inbox/cats/{name}.json" into
// container "inbox" and prefix "cats/".
func (p *FilePlugin) Describe(b trigger.Binding) (map[string]string, error) {
	raw := strings.Trim(strings.TrimSpace(b.Path), "/")
	if raw == "" {
		return nil, fmt.Errorf("file binding: path is required")
	}
	container, rest, _ := strings.Cut(raw, "/")
	if i := strings.IndexByte(rest, '{'); i >= 0 {
		rest = rest[:i]
	}
	if rest != "" && !strings.HasSuffix(rest, "/") {
		if i := strings.LastIndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		} else {
			rest = ""
		}
	}
	meta := map[string]string{
		MetaContainer: container,
		MetaPrefix:    rest,
	}
	if c := strings.TrimSpace(b.Connection); c != "" {
		meta[MetaConnection] = c
	}
	return meta, nil
}

func (p *FilePlugin) Init(ctx context.Context) (trigger.Strategies, error) {
	if p.Objects == nil {
		return trigger.Strategies{}, fmt.Errorf("%w: file plugin needs an object client", errNotConfigured)
	}
	return trigger.Strategies{
		Capture: fileCapture{objects: p.Objects},
		Replay:  fileReplay{objects: p.Objects},
	}, nil
}

type fileCapture struct {
	objects Objects
}

// Capture copies the triggering object's bytes, tags and metadata. A
// correlation tag already on the object, as left by a replay, becomes the
// correlation id.
func (c fileCapture) Capture(ctx context.Context, fn trigger.Function, inv trigger.Invocation) (trigger.Payload, error) {
	ev := inv.Object
	if ev == nil || ev.Key == "" {
		return trigger.Payload{}, fmt.Errorf("%w: missing object event", trigger.ErrNoPayload)
	}
	container := ev.Container
	if container == "" {
		container = fn.Meta(MetaContainer)
	}
	obj, err := c.objects.Get(ctx, container, ev.Key)
	if err != nil {
		return trigger.Payload{}, err
	}

	meta := maps.Clone(obj.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[correlation.MetaSourceKey] = container + "/" + ev.Key

	return trigger.Payload{
		Bytes:         obj.Bytes,
		ContentType:   obj.ContentType,
		Tags:          obj.Tags,
		Metadata:      meta,
		CorrelationID: obj.Tags[correlation.TagCorrelationID],
	}, nil
}

type fileReplay struct {
	objects Objects
}

// Replay uploads the captured bytes to <container>/<prefix><source name>
// with the cleaned tags and a correlation tag for the replay.
func (r fileReplay) Replay(ctx context.Context, fn trigger.Function, in trigger.ReplayInput) (trigger.Delivery, error) {
	container := fn.Meta(MetaContainer)
	if container == "" {
		return trigger.Delivery{}, fmt.Errorf("function %s has no input container", fn.Name)
	}
	key := fn.Meta(MetaPrefix) + replayName(in.Original)

	if err := correlation.CheckCapacity(in.Tags, correlation.TagCorrelationID); err != nil {
		return trigger.Delivery{}, err
	}
	tags := maps.Clone(in.Tags)
	if tags == nil {
		tags = map[string]string{}
	}
	tags[correlation.TagCorrelationID] = in.CorrelationID

	meta := maps.Clone(in.Original.Metadata)
	delete(meta, correlation.MetaKind)
	delete(meta, correlation.MetaCapturedAt)
	delete(meta, correlation.MetaSourceKey)

	err := r.objects.Put(ctx, container, key, Object{
		Bytes:       in.Original.Bytes,
		ContentType: in.Original.ContentType,
		Tags:        tags,
		Metadata:    meta,
	})
	if err != nil {
		return trigger.Delivery{}, fmt.Errorf("%w: %w", trigger.ErrTransport, err)
	}
	return trigger.Delivery{Target: container + "/" + key}, nil
}

// replayName is the base name of the captured source object, or the
// correlation id when the source is unknown.
func replayName(rec correlation.Record) string {
	if src := rec.Metadata[correlation.MetaSourceKey]; src != "" {
		if name := path.Base(src); name != "." && name != "/" {
			return name
		}
	}
	return rec.Location.CorrelationID
}
