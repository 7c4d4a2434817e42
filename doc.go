/*
go-detect runs object detection over images, directories of images, and
video files.  It processes a batch of work units through a detection model,
draws annotated copies of the source media, and exports the objects found
as CSV records.

The pipeline core is model agnostic, inference is performed by any backend
implementing the Detector interface.  Adapters for the OpenCV DNN module
and for ONNX Runtime are provided in the backend subdirectory.

See the cmd/godetect subdirectory for the command line front end.
*/
package detect
