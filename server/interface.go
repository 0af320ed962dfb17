package server

const ramlInterface = `
#%RAML 0.8
title: "Brain cockpit surface data server"
version: v1
baseUri: /api
mediaType: application/json
/config:
  get:
    description: returns the server configuration with what was loaded for every dataset
/interface:
  get:
    description: returns this RAML description
/server:
  /info:
    get:
      description: returns server status, load cache and response cache statistics
  /reload:
    post:
      description: re-reads dataset configuration and reloads every dataset, then swaps them in
/datasets/{dataset}:
  /info:
    get:
      description: subjects, mesh_supports, hemispheres, tasks_contrasts, n_files, unit and mesh_types
  /subjects:
    get:
      description: subject identifiers in description order
  /contrast_labels:
    get:
      description: "[task, contrast] pairs sorted by task then contrast"
  /descriptions:
    get:
      description: contrast descriptions
  /mesh_url:
    get:
      description: path of the glTF mesh of a subject hemisphere
      queryParameters:
        subject: { type: integer, required: true }
        meshSupport: { default: fsaverage5 }
        meshType:
        hemi: { enum: [left, right], required: true }
  /mesh/{path}:
    get:
      description: mesh file relative to the dataset description
  /voxel_fingerprint:
    get:
      description: |
        values of one voxel for every task/contrast pair, null where missing.
        With hemi=both, voxels past the left hemisphere are right hemisphere
        voxels.  Null if the hemisphere can't be resolved.
      queryParameters:
        mesh: { default: fsaverage5 }
        subject_index: { type: integer, required: true }
        voxel_index: { type: integer, required: true }
        hemi: { enum: [left, right, both], required: true }
  /voxel_fingerprint_mean:
    get:
      description: fingerprint averaged over subjects, ignoring missing values
      queryParameters:
        mesh: { default: fsaverage5 }
        voxel_index: { type: integer, required: true }
        hemi: { enum: [left, right, both], required: true }
  /contrast:
    get:
      description: map of one subject, null if missing
      queryParameters:
        mesh: { default: fsaverage5 }
        subject_index: { type: integer, required: true }
        contrast_index: { type: integer, required: true }
        hemi: { enum: [left, right, both], default: left }
        format: { enum: [json, arrow], default: json }
  /contrast_mean:
    get:
      description: map averaged over subjects
      queryParameters:
        mesh: { default: fsaverage5 }
        contrast_index: { type: integer, required: true }
        hemi: { enum: [left, right, both], default: left }
        format: { enum: [json, arrow], default: json }
/alignments/{dataset}:
  /models:
    get:
      description: model identifiers
  /{model}/info:
    get:
      description: columns of the model with glTF mesh names
  /{model}/mesh/{path}:
    get:
      description: mesh file relative to the alignment description
  /single_voxel:
    get:
      description: normalized coupling of one voxel, null where a vertex has no weight
      queryParameters:
        model_id: { type: integer, required: true }
        voxel: { type: integer, required: true }
        role: { enum: [source, target], required: true }
`
